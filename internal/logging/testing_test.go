package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger_AssertLogged(t *testing.T) {
	tl := NewTestLogger()

	tl.Warn(context.Background(), "Anonymized part count mismatch", zap.Int("expected", 3))

	tl.AssertLogged(t, zapcore.WarnLevel, "part count mismatch")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "part count mismatch")
	assert.Equal(t, 1, tl.FilterMessage("mismatch").Len())
}

func TestTestLogger_AssertField(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "Branch created", zap.String("branch", "kb/db-timeouts"), zap.Int("attempt", 2))

	tl.AssertField(t, "Branch created", "branch", "kb/db-timeouts")
	tl.AssertField(t, "Branch created", "attempt", int64(2))
}

func TestTestLogger_AssertNoText(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "Conversation anonymized", zap.Int("messages", 2))

	tl.AssertNoText(t, "alice@example.com")
}

func TestTestLogger_Reset(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "one")
	tl.Reset()
	assert.Empty(t, tl.All())
}
