package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slok/scriptbox/internal/metrics"
)

const prefix = "scriptbox"

// Recorder is a Prometheus metrics recorder.
type Recorder struct {
	transitionDuration *prometheus.HistogramVec
	guestCallDuration  *prometheus.HistogramVec
	poisoned           prometheus.Counter
}

// NewRecorder returns a new Prometheus recorder registered on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		transitionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: prefix,
				Subsystem: "sandbox",
				Name:      "transition_duration_seconds",
				Help:      "Duration of sandbox lifecycle transitions in seconds.",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"transition", "success"},
		),
		guestCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: prefix,
				Subsystem: "sandbox",
				Name:      "guest_call_duration_seconds",
				Help:      "Duration of guest calls in seconds.",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"function", "success"},
		),
		poisoned: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: prefix,
				Subsystem: "sandbox",
				Name:      "poisoned_total",
				Help:      "Total number of poisoned isolated contexts.",
			},
		),
	}
}

func (r *Recorder) ObserveTransition(_ context.Context, transition string, success bool, duration time.Duration) {
	r.transitionDuration.WithLabelValues(transition, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func (r *Recorder) ObserveGuestCall(_ context.Context, function string, success bool, duration time.Duration) {
	r.guestCallDuration.WithLabelValues(function, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func (r *Recorder) IncPoisoned(_ context.Context) {
	r.poisoned.Inc()
}

var _ metrics.Recorder = &Recorder{}
