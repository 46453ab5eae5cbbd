// Package logging provides structured logging for archie.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (trace_id, run.id, conversation.id, stage)
//   - Secret redaction by field name and value pattern
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "Pipeline stage completed", zap.String("stage", "extract"))
//
// Components that do not need context correlation take the underlying
// *zap.Logger via Underlying().
//
// # Testing
//
// NewTestLogger records every entry in memory:
//
//	tl := logging.NewTestLogger()
//	svc := NewService(tl.Underlying())
//	tl.AssertLogged(t, zapcore.WarnLevel, "part count mismatch")
package logging
