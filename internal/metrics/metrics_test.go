package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveEvaluation(t *testing.T) {
	before := testutil.ToFloat64(evaluationsTotal.WithLabelValues("create", OutcomeViolating))
	ObserveEvaluation("create", OutcomeViolating, -time.Second)
	after := testutil.ToFloat64(evaluationsTotal.WithLabelValues("create", OutcomeViolating))
	assert.Equal(t, before+1, after)
}

func TestLiveClientsGauge(t *testing.T) {
	SetLiveClients(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(liveClients))
	SetLiveClients(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(liveClients))
}

func TestResourceUsage(t *testing.T) {
	SetResourceUsage(ScopeProcess, 12.5, 64)
	assert.Equal(t, 12.5, testutil.ToFloat64(resourceUsage.WithLabelValues(ScopeProcess, "cpu_percent")))
	assert.Equal(t, float64(64), testutil.ToFloat64(resourceUsage.WithLabelValues(ScopeProcess, "memory_mib")))
}
