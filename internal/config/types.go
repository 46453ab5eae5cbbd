package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration read from text such as "30s" or "2m".
type Duration time.Duration

// UnmarshalText parses a non-negative Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.Duration().String()), nil }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.Duration().String()) }

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

const redacted = "[REDACTED]"

var errRedactedSecret = errors.New("secret value is a redaction placeholder")

// Secret holds a credential such as an API key or repository token. Every
// marshalled or printed form is redacted; Value returns the raw string and
// is only called where a client is constructed.
type Secret string

// display is what every printed or marshalled form shows.
func (s Secret) display() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.display() }
func (s Secret) GoString() string { return "Secret(" + redacted + ")" }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.display()) }
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.display()), nil }
func (s Secret) MarshalYAML() (interface{}, error) { return s.display(), nil }

// set trims surrounding whitespace and rejects the redaction placeholder
// written by the marshallers.
func (s *Secret) set(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == redacted {
		return errRedactedSecret
	}
	*s = Secret(raw)
	return nil
}

func (s *Secret) UnmarshalText(text []byte) error { return s.set(string(text)) }

func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.set(raw)
}

func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return s.set(raw)
}
