package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveCommand("DISPENSE", 200)
	m.ObserveCommand("DISPENSE", 200)
	m.ObserveCommand("DISPENSE", 402)
	m.ObserveTransfer("ok")
	m.ObserveDispense("insufficient_funds")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("DISPENSE", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("DISPENSE", "402")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispenses.WithLabelValues("insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveTransfer("insufficient_funds")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `dispense_transfers_total{result="insufficient_funds"} 1`))
	assert.Contains(t, body, "dispense_connections_active 0")
}
