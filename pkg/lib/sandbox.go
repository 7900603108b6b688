package lib

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	metricsprom "github.com/slok/scriptbox/internal/metrics/prometheus"
	"github.com/slok/scriptbox/internal/model"
	"github.com/slok/scriptbox/internal/sandbox"
	"github.com/slok/scriptbox/pkg/lib/log"
)

// Default sandbox sizes in bytes.
const (
	DefaultStackSize = model.DefaultStackSize
	DefaultHeapSize  = model.DefaultHeapSize
)

// HostPrintFunc receives the text printed by the sandbox scripts.
type HostPrintFunc = sandbox.HostPrintFunc

// Builder stages the configuration of a sandbox.
type Builder struct {
	b *sandbox.Builder
}

// NewBuilder returns a new sandbox builder with the default configuration.
func NewBuilder() *Builder {
	return &Builder{b: sandbox.NewBuilder()}
}

// WithStackSize sets the guest stack size in bytes (default 128 KiB).
func (b *Builder) WithStackSize(size uint64) *Builder {
	b.b.WithStackSize(size)
	return b
}

// WithHeapSize sets the guest heap size in bytes (default 512 KiB).
func (b *Builder) WithHeapSize(size uint64) *Builder {
	b.b.WithHeapSize(size)
	return b
}

// WithInputDataSize sets the buffer size used to send scripts into the guest.
// It bounds the size of the scripts.
func (b *Builder) WithInputDataSize(size uint64) *Builder {
	b.b.WithInputDataSize(size)
	return b
}

// WithOutputDataSize sets the buffer size the guest uses to send data out.
func (b *Builder) WithOutputDataSize(size uint64) *Builder {
	b.b.WithOutputDataSize(size)
	return b
}

// WithHostPrint sets the function that receives the scripts output.
// By default the output goes to the process stdout.
func (b *Builder) WithHostPrint(f HostPrintFunc) *Builder {
	b.b.WithHostPrint(f)
	return b
}

// WithCallTimeout bounds every guest call. A call that times out poisons the sandbox.
func (b *Builder) WithCallTimeout(d time.Duration) *Builder {
	b.b.WithCallTimeout(d)
	return b
}

// WithLogger sets the logger, by default nothing is logged.
func (b *Builder) WithLogger(l log.Logger) *Builder {
	b.b.WithLogger(l)
	return b
}

// WithMetricsRegisterer enables Prometheus metrics registered on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.b.WithMetricsRecorder(metricsprom.NewRecorder(reg))
	return b
}

// Build checks the host can run sandboxes and returns a ProtoSandbox. The
// builder can't be used after this call.
func (b *Builder) Build(ctx context.Context) (*ProtoSandbox, error) {
	p, err := b.b.Build(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &ProtoSandbox{p: p}, nil
}

// ProtoSandbox is a sandbox that has not booted yet.
type ProtoSandbox struct {
	p *sandbox.ProtoSandbox
}

// LoadRuntime boots the sandbox and captures its clean snapshot.
func (p *ProtoSandbox) LoadRuntime(ctx context.Context) (*RuntimeSandbox, error) {
	r, err := p.p.LoadRuntime(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &RuntimeSandbox{r: r}, nil
}

// Close releases the sandbox.
func (p *ProtoSandbox) Close() error { return mapError(p.p.Close()) }

// RuntimeSandbox is a booted sandbox without interpreter.
type RuntimeSandbox struct {
	r *sandbox.RuntimeSandbox
}

// LoadInterpreter initializes the sandbox interpreter.
func (r *RuntimeSandbox) LoadInterpreter(ctx context.Context) (*LoadedSandbox, error) {
	l, err := r.r.LoadInterpreter(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &LoadedSandbox{l: l}, nil
}

// Snapshot returns the information of the clean snapshot.
func (r *RuntimeSandbox) Snapshot() SnapshotInfo { return fromInternalSnapshot(r.r.Snapshot()) }

// Poisoned returns true if the sandbox faulted.
func (r *RuntimeSandbox) Poisoned() bool { return r.r.Poisoned() }

// Close releases the sandbox.
func (r *RuntimeSandbox) Close() error { return mapError(r.r.Close()) }

// LoadedSandbox is a sandbox with a live interpreter.
type LoadedSandbox struct {
	l *sandbox.LoadedSandbox
}

// RunScript runs a script. True means the script was dispatched to the
// interpreter, not that it succeeded.
func (l *LoadedSandbox) RunScript(ctx context.Context, code string) (bool, error) {
	ok, err := l.l.RunScript(ctx, code)
	return ok, mapError(err)
}

// Unload drops the interpreter and every script effect by restoring the clean snapshot.
func (l *LoadedSandbox) Unload(ctx context.Context) (*RuntimeSandbox, error) {
	r, err := l.l.Unload(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &RuntimeSandbox{r: r}, nil
}

// Poisoned returns true if the sandbox faulted.
func (l *LoadedSandbox) Poisoned() bool { return l.l.Poisoned() }

// Close releases the sandbox.
func (l *LoadedSandbox) Close() error { return mapError(l.l.Close()) }
