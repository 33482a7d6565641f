package common

import (
	"fmt"
	"os"
	"path/filepath"

	"speed-ledger-go/internal/models"

	"gopkg.in/yaml.v2"
)

type RailsConfig struct {
	Rails []models.RailConfig `yaml:"rails"`
}

// LoadRailsConfig reads the enabled payment rails. An empty path falls
// back to the built-in set.
func LoadRailsConfig(railsFile string) (models.RailSet, error) {
	if railsFile == "" {
		return models.DefaultRailSet(), nil
	}

	var railsPath string
	if filepath.IsAbs(railsFile) {
		railsPath = railsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		railsPath = filepath.Join(wd, railsFile)
	}

	data, err := os.ReadFile(railsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", railsFile, err)
	}

	var config RailsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", railsFile, err)
	}
	if len(config.Rails) == 0 {
		return nil, fmt.Errorf("%s defines no rails", railsFile)
	}

	rails := make(models.RailSet, len(config.Rails))
	for i, rc := range config.Rails {
		rail, err := models.ParseRail(string(rc.Rail))
		if err != nil {
			return nil, fmt.Errorf("rail at index %d: %w", i, err)
		}
		if rc.Confirmation != "single" && rc.Confirmation != "delayed" {
			return nil, fmt.Errorf("rail %s: confirmation must be single or delayed, got %q", rail, rc.Confirmation)
		}
		if rc.OptionKey == "" {
			return nil, fmt.Errorf("rail %s missing option_key", rail)
		}
		if rc.AddressField == "" {
			rc.AddressField = "address"
		}
		if _, dup := rails[rail]; dup {
			return nil, fmt.Errorf("rail %s defined twice", rail)
		}
		rc.Rail = rail
		rails[rail] = rc
	}

	return rails, nil
}
