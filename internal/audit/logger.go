// Package audit writes one structured line per confirmer transition and per
// admin tool call.
package audit

import (
	"time"

	"go.uber.org/zap"

	"confirm-dialog/internal/confirm"
)

type Logger struct {
	enabled bool
	log     *zap.Logger
}

func NewLogger(enabled bool, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{enabled: enabled, log: log.Named("audit")}
}

func (l *Logger) ObserveTransition(dialog, confirmer string, outcome confirm.Outcome) {
	if l == nil || !l.enabled {
		return
	}
	l.log.Info("confirm_transition",
		zap.String("dialog", dialog),
		zap.String("confirmer", confirmer),
		zap.String("outcome", string(outcome)),
	)
}

func (l *Logger) LogToolCall(tool string, startedAt time.Time, err error) {
	if l == nil || !l.enabled {
		return
	}
	fields := []zap.Field{
		zap.String("tool", tool),
		zap.String("outcome", "ok"),
		zap.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
	}
	if err != nil {
		fields[1] = zap.String("outcome", "error")
		fields = append(fields, zap.Error(err))
	}
	l.log.Info("mcp_audit", fields...)
}
