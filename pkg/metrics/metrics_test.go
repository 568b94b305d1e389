package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		CommandsIssuedTotal,
		CommandRepliesTotal,
		CommandTimeoutsTotal,
		CommandsPending,
		CommandDuration,
		RefreshFailuresTotal,
		KeyVarUpdatesTotal,
		ParseErrorsTotal,
		ConnectionState,
		ReconnectAttemptsTotal,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterVecIncrements(t *testing.T) {
	before := testutil.ToFloat64(CommandsIssuedTotal.WithLabelValues(KindRefresh))
	CommandsIssuedTotal.WithLabelValues(KindRefresh).Add(3)
	after := testutil.ToFloat64(CommandsIssuedTotal.WithLabelValues(KindRefresh))

	assert.Equal(t, 3.0, after-before)
}

func TestGauge(t *testing.T) {
	CommandsPending.Set(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(CommandsPending))
	CommandsPending.Dec()
	assert.Equal(t, 3.0, testutil.ToFloat64(CommandsPending))
}

func TestHandlerServesMetrics(t *testing.T) {
	ParseErrorsTotal.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hub_parse_errors_total")
	assert.Contains(t, rec.Body.String(), "# HELP hub_commands_pending")
}
