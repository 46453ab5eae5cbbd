package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// bridgeScope names the instrumentation scope of bridged log records.
const bridgeScope = "github.com/fyrsmithlabs/archie"

// newBridgeCore forwards entries at or above level to provider through the
// otelzap bridge. Fields pass through the same redaction rules as the local
// encoder, since the bridge does not encode.
func newBridgeCore(provider log.LoggerProvider, level zapcore.Level, redactor *RedactingEncoder) zapcore.Core {
	core := otelzap.NewCore(bridgeScope, otelzap.WithLoggerProvider(provider))
	return &redactingCore{
		Core:     &levelRangeCore{Core: core, min: level, max: zapcore.FatalLevel},
		redactor: redactor,
	}
}

// redactingCore rewrites fields before they reach a core that bypasses
// encoders.
type redactingCore struct {
	zapcore.Core
	redactor *RedactingEncoder
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redact(fields)), redactor: c.redactor}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, c.redact(fields))
}

func (c *redactingCore) redact(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = f
		switch f.Type {
		case zapcore.StringType:
			if r, ok := c.redactor.replacement(f.Key, f.String); ok {
				out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: r}
			}
		case zapcore.ByteStringType, zapcore.BinaryType, zapcore.ReflectType,
			zapcore.ArrayMarshalerType, zapcore.ObjectMarshalerType, zapcore.StringerType:
			if c.redactor.blocked(f.Key) {
				out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: "[REDACTED]"}
			}
		}
	}
	return out
}
