package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.CommandsApplied.WithLabelValues("leg", "mode").Inc()
	m.Broadcasts.WithLabelValues(ReasonHeartbeat).Add(2)
	m.Connections.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsApplied.WithLabelValues("leg", "mode")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(ReasonHeartbeat)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Connections))
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.SendFailures.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "uki_broadcast_send_failures_total 1"))
}
