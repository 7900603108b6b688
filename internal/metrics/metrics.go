package metrics

import (
	"context"
	"time"
)

// Recorder knows how to record sandbox metrics.
type Recorder interface {
	// ObserveTransition measures a lifecycle transition (boot, load, unload...).
	ObserveTransition(ctx context.Context, transition string, success bool, duration time.Duration)
	// ObserveGuestCall measures a call into the guest.
	ObserveGuestCall(ctx context.Context, function string, success bool, duration time.Duration)
	// IncPoisoned counts an isolated context that got poisoned.
	IncPoisoned(ctx context.Context)
}

// Noop is a Recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) ObserveTransition(_ context.Context, _ string, _ bool, _ time.Duration) {}
func (noop) ObserveGuestCall(_ context.Context, _ string, _ bool, _ time.Duration)  {}
func (noop) IncPoisoned(_ context.Context)                                          {}
