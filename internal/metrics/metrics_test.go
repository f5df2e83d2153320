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

func TestCountersAreIndependentPerRegistry(t *testing.T) {
	a, b := New(), New()

	a.ReservationLines.WithLabelValues(LineFull).Inc()
	a.ReservationLines.WithLabelValues(LineFull).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.ReservationLines.WithLabelValues(LineFull)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ReservationLines.WithLabelValues(LineFull)))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ConflictChecks.WithLabelValues(CheckConflict).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `oprema_conflict_checks_total{result="conflict"} 1`))
}
