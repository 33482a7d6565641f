package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderWebhookId        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
	HeaderHookdeck         = "x-hookdeck-signature"
	HeaderHookdeck2        = "x-hookdeck-signature-2"

	secretPrefix     = "wsec_"
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("missing required webhook headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// SpeedVerifier checks the provider's webhook signature: base64
// HMAC-SHA256 over "{id}.{timestamp}.{body}" keyed by the decoded secret.
type SpeedVerifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewSpeedVerifier(secret string, tolerance time.Duration) (*SpeedVerifier, error) {
	if !strings.HasPrefix(secret, secretPrefix) {
		return nil, fmt.Errorf("invalid signing secret format: expected %s prefix", secretPrefix)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid signing secret encoding: %w", err)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &SpeedVerifier{key: key, tolerance: tolerance, now: time.Now}, nil
}

// Verify accepts the request when any v1 entry of the signature header
// matches.
func (v *SpeedVerifier) Verify(id, timestamp, signatures string, body []byte) error {
	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, timestamp)
	}
	if age := v.now().Sub(time.Unix(ts, 0)); age > v.tolerance || age < -v.tolerance {
		return ErrStaleTimestamp
	}

	expected := v.sign(id, timestamp, body)
	for _, entry := range strings.Fields(signatures) {
		sig := entry
		if version, value, ok := strings.Cut(entry, ","); ok {
			if version != "v1" {
				continue
			}
			sig = value
		}
		actual, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, actual) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *SpeedVerifier) sign(id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns a header value for body, for tests and replay tooling.
func (v *SpeedVerifier) Sign(id, timestamp string, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.sign(id, timestamp, body))
}

// HookdeckVerifier checks the relay's signature: base64 HMAC-SHA256 of
// the raw body, sent in one of two headers during secret rotation.
type HookdeckVerifier struct {
	secret []byte
}

func NewHookdeckVerifier(secret string) *HookdeckVerifier {
	return &HookdeckVerifier{secret: []byte(secret)}
}

func (v *HookdeckVerifier) Verify(signature, signature2 string, body []byte) error {
	if signature == "" && signature2 == "" {
		return ErrMissingHeaders
	}
	expected := v.Sign(body)
	for _, sig := range []string{signature, signature2} {
		if sig != "" && hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *HookdeckVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
