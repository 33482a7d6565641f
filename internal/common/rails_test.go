package common

import (
	"os"
	"path/filepath"
	"testing"

	"speed-ledger-go/internal/models"
)

func writeRails(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rails.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write rails file: %v", err)
	}
	return path
}

func TestLoadRailsConfig(t *testing.T) {
	path := writeRails(t, `
rails:
  - rail: lightning
    confirmation: single
    option_key: lightning
    address_field: payment_request
  - rail: on_chain
    confirmation: delayed
    option_key: on_chain
`)

	rails, err := LoadRailsConfig(path)
	if err != nil {
		t.Fatalf("LoadRailsConfig failed: %v", err)
	}
	if len(rails) != 2 {
		t.Fatalf("Expected 2 rails, got %d", len(rails))
	}
	if !rails.IsDelayed(models.RailOnchain) || rails.IsDelayed(models.RailLightning) {
		t.Error("Unexpected confirmation semantics")
	}
	if rails[models.RailOnchain].AddressField != "address" {
		t.Errorf("Expected default address field, got %q", rails[models.RailOnchain].AddressField)
	}
	if rails.Supports(models.RailTron) {
		t.Error("Expected tron to be disabled")
	}
}

func TestLoadRailsConfig_Default(t *testing.T) {
	rails, err := LoadRailsConfig("")
	if err != nil {
		t.Fatalf("LoadRailsConfig failed: %v", err)
	}
	if len(rails) != len(models.DefaultRailSet()) {
		t.Errorf("Expected the built-in rails, got %d", len(rails))
	}
}

func TestLoadRailsConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "rails: []"},
		{"unknown rail", "rails:\n  - rail: paypal\n    confirmation: single\n    option_key: paypal"},
		{"bad confirmation", "rails:\n  - rail: tron\n    confirmation: eventually\n    option_key: tron"},
		{"missing option key", "rails:\n  - rail: tron\n    confirmation: delayed"},
		{"duplicate", "rails:\n  - rail: tron\n    confirmation: delayed\n    option_key: tron\n  - rail: tron\n    confirmation: delayed\n    option_key: tron"},
		{"not yaml", "rails: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRailsConfig(writeRails(t, tt.content)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := LoadRailsConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
