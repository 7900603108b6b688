package prometheus_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metricsprom "github.com/slok/scriptbox/internal/metrics/prometheus"
)

func TestRecorder(t *testing.T) {
	tests := map[string]struct {
		record     func(r *metricsprom.Recorder)
		metric     string
		expMetrics string
	}{
		"Poisoned contexts should be counted.": {
			record: func(r *metricsprom.Recorder) {
				r.IncPoisoned(context.Background())
				r.IncPoisoned(context.Background())
			},
			metric: "scriptbox_sandbox_poisoned_total",
			expMetrics: `
# HELP scriptbox_sandbox_poisoned_total Total number of poisoned isolated contexts.
# TYPE scriptbox_sandbox_poisoned_total counter
scriptbox_sandbox_poisoned_total 2
`,
		},

		"Transitions should be measured by transition and result.": {
			record: func(r *metricsprom.Recorder) {
				r.ObserveTransition(context.Background(), "unload", true, 2*time.Second)
			},
			metric: "scriptbox_sandbox_transition_duration_seconds",
			expMetrics: `
# HELP scriptbox_sandbox_transition_duration_seconds Duration of sandbox lifecycle transitions in seconds.
# TYPE scriptbox_sandbox_transition_duration_seconds histogram
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.0001"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.0005"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.001"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.005"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.01"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.025"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.05"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.1"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.25"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="0.5"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="1"} 0
scriptbox_sandbox_transition_duration_seconds_bucket{success="true",transition="unload",le="+Inf"} 1
scriptbox_sandbox_transition_duration_seconds_sum{success="true",transition="unload"} 2
scriptbox_sandbox_transition_duration_seconds_count{success="true",transition="unload"} 1
`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			r := metricsprom.NewRecorder(reg)

			test.record(r)

			err := testutil.GatherAndCompare(reg, strings.NewReader(test.expMetrics), test.metric)
			require.NoError(t, err)
		})
	}
}

func TestGuestCallCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metricsprom.NewRecorder(reg)

	r.ObserveGuestCall(context.Background(), "ExecuteScript", true, time.Millisecond)
	r.ObserveGuestCall(context.Background(), "ExecuteScript", false, time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "scriptbox_sandbox_guest_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
