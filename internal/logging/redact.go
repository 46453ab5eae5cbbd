package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/archie/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contentFields carry conversation or document text. They are logged as a
// length marker only, so raw chat content never reaches log storage.
var contentFields = map[string]bool{
	"content":      true,
	"text":         true,
	"body":         true,
	"message_text": true,
	"transcript":   true,
}

type secretMarshaler struct {
	key string
	val config.Secret
}

func (s *secretMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString(s.key, fmt.Sprintf("[REDACTED:%d]", len(s.val.Value())))
	return nil
}

// Secret creates a Zap field for config.Secret showing only its length.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, &secretMarshaler{key: key, val: val})
}

// RedactedString creates a Zap field with redacted value and length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	redactFields map[string]bool
	redactRegex  []*regexp.Regexp
}

// NewRedactingEncoder wraps an encoder with redaction rules.
// Content fields are always reduced to their length, even when redaction is disabled.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	e := &RedactingEncoder{Encoder: base, redactFields: map[string]bool{}}
	if !cfg.Enabled {
		return e, nil
	}

	for _, f := range cfg.Fields {
		e.redactFields[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		if len(p) > 200 {
			return nil, fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		e.redactRegex = append(e.redactRegex, re)
	}
	return e, nil
}

// replacement returns the text to write instead of val, or false to keep val.
func (e *RedactingEncoder) replacement(key, val string) (string, bool) {
	lower := strings.ToLower(key)
	if e.redactFields[lower] {
		return "[REDACTED]", true
	}
	if contentFields[lower] {
		return "[CONTENT:" + strconv.Itoa(len(val)) + "]", true
	}
	for _, re := range e.redactRegex {
		if re.MatchString(val) {
			return "[REDACTED:pattern]", true
		}
	}
	return "", false
}

func (e *RedactingEncoder) blocked(key string) bool {
	lower := strings.ToLower(key)
	return e.redactFields[lower] || contentFields[lower]
}

func (e *RedactingEncoder) AddString(key, val string) {
	if r, ok := e.replacement(key, val); ok {
		e.Encoder.AddString(key, r)
		return
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if r, ok := e.replacement(key, string(val)); ok {
		e.Encoder.AddString(key, r)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.blocked(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive. Nested
// structs are not inspected; use zap.Object with a custom marshaler for those.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.blocked(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.blocked(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.blocked(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:      e.Encoder.Clone(),
		redactFields: e.redactFields,
		redactRegex:  e.redactRegex,
	}
}
