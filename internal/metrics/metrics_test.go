package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirm-dialog/internal/confirm"
)

func TestCollectorCountsTransitions(t *testing.T) {
	c := NewCollector()
	c.ObserveTransition("files", "delete", confirm.OutcomeShown)
	c.ObserveTransition("files", "delete", confirm.OutcomeConfirmed)
	c.ObserveTransition("files", "delete", confirm.OutcomeExpired)
	c.ObserveTransition("files", "delete", confirm.OutcomeExpired)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("files", "delete", "confirmed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("files", "delete", "expired")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.transitions.WithLabelValues("files", "delete", "cancelled")))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveTransition("account", "logout", confirm.OutcomeCancelled)
	c.SetSessions(3)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `confirm_transitions_total{confirmer="logout",dialog="account",outcome="cancelled"} 1`)
	assert.Contains(t, string(body), "confirm_memory_sessions 3")
}

func TestTwoCollectorsDoNotClash(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector()
		NewCollector()
	})
}
