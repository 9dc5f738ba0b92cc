package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"confirm-dialog/internal/confirm"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestObserveTransition(t *testing.T) {
	log, logs := observed()
	l := NewLogger(true, log)

	l.ObserveTransition("files", "delete", confirm.OutcomeConfirmed)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "confirm_transition", entry.Message)
	assert.Equal(t, "audit", entry.LoggerName)
	fields := entry.ContextMap()
	assert.Equal(t, "files", fields["dialog"])
	assert.Equal(t, "delete", fields["confirmer"])
	assert.Equal(t, "confirmed", fields["outcome"])
}

func TestLogToolCall(t *testing.T) {
	log, logs := observed()
	l := NewLogger(true, log)

	l.LogToolCall("dialog.list", time.Now(), nil)
	l.LogToolCall("pending.cancel", time.Now(), errors.New("confirm_token is invalid"))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "ok", logs.All()[0].ContextMap()["outcome"])
	failed := logs.All()[1].ContextMap()
	assert.Equal(t, "error", failed["outcome"])
	assert.Equal(t, "confirm_token is invalid", failed["error"])
}

func TestDisabledLoggerIsSilent(t *testing.T) {
	log, logs := observed()
	l := NewLogger(false, log)
	l.ObserveTransition("files", "delete", confirm.OutcomeShown)
	l.LogToolCall("dialog.list", time.Now(), nil)
	assert.Zero(t, logs.Len())

	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.ObserveTransition("files", "delete", confirm.OutcomeShown)
	})
}
