package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/archie/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferedLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Caller.Enabled = false
	logger, err := NewLoggerTo(cfg, &buf)
	require.NoError(t, err)
	return logger, &buf
}

func TestSecretField(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.Info(context.Background(), "Client configured",
		Secret("creds", config.Secret("super-secret-value")))

	out := buf.String()
	assert.NotContains(t, out, "super-secret-value")
	assert.Contains(t, out, "[REDACTED:18]")
}

func TestRedactedString(t *testing.T) {
	field := RedactedString("api_key", "sk-1234567890abcdef")
	assert.Equal(t, "[REDACTED:19]", field.String)
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.Info(context.Background(), "Calling host",
		zap.String("token", "ghp_plain"),
		zap.String("owner", "acme"))

	out := buf.String()
	assert.NotContains(t, out, "ghp_plain")
	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.Contains(t, out, `"owner":"acme"`)
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	logger, buf := newBufferedLogger(t)

	logger.Info(context.Background(), "Request sent",
		zap.String("header", "Bearer abc.def"),
		zap.String("note", "xoxb-1234-abcd"))

	out := buf.String()
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "xoxb-1234-abcd")
	assert.Equal(t, 2, strings.Count(out, "[REDACTED:pattern]"))
}

func TestRedactingEncoder_ContentFieldsLoggedAsLength(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Redaction.Enabled = false
	logger, err := NewLoggerTo(cfg, &buf)
	require.NoError(t, err)

	logger.Info(context.Background(), "Message standardized",
		zap.String("content", "Alice's laptop at 10.0.0.4 is down"))

	out := buf.String()
	assert.NotContains(t, out, "Alice")
	assert.Contains(t, out, "[CONTENT:34]")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	cfg := RedactionConfig{
		Enabled:  true,
		Patterns: []string{`(?i)bearer\s+\S+`, "[invalid("},
	}

	encoder, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.Error(t, err)
	assert.Nil(t, encoder)
	assert.Contains(t, err.Error(), "invalid redaction pattern")
}

func TestNewRedactingEncoder_PatternTooLong(t *testing.T) {
	cfg := RedactionConfig{
		Enabled:  true,
		Patterns: []string{strings.Repeat("a", 201)},
	}

	_, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern too long")
}

func TestNewRedactingEncoder_DisabledSkipsValidation(t *testing.T) {
	cfg := RedactionConfig{Enabled: false, Patterns: []string{"[invalid("}}

	encoder, err := NewRedactingEncoder(newEncoder("json"), cfg)
	require.NoError(t, err)
	assert.NotNil(t, encoder)
}

func TestRedactingEncoder_AllMethodsImplemented(t *testing.T) {
	encoder, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{
		Enabled: true,
		Fields:  []string{"password", "token", "certificate", "credentials", "secret_array"},
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		encoder.AddString("password", "secret")
		encoder.AddByteString("token", []byte("token-value"))
		encoder.AddBinary("certificate", []byte{0x00})
		_ = encoder.AddReflected("safe_field", "value")
		_ = encoder.AddObject("credentials", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			return nil
		}))
		_ = encoder.AddArray("secret_array", zapcore.ArrayMarshalerFunc(func(enc zapcore.ArrayEncoder) error {
			return nil
		}))
		_ = encoder.Clone()
	})
}
