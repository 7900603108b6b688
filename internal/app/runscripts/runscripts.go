package runscripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slok/scriptbox/internal/hypervisor"
	"github.com/slok/scriptbox/internal/log"
	"github.com/slok/scriptbox/internal/metrics"
	"github.com/slok/scriptbox/internal/model"
	"github.com/slok/scriptbox/internal/sandbox"
	"github.com/slok/scriptbox/internal/utils/env"
)

// ServiceConfig is the configuration for the run scripts service.
type ServiceConfig struct {
	// Driver is the isolation driver, if nil the default driver is used.
	Driver  hypervisor.Driver
	Sandbox model.SandboxConfig
	Metrics metrics.Recorder
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Sandbox == (model.SandboxConfig{}) {
		c.Sandbox = model.DefaultSandboxConfig()
	}
	if err := c.Sandbox.Validate(); err != nil {
		return err
	}

	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.RunScripts"})
	return nil
}

// Service runs scripts each one on a clean interpreter of the same sandbox.
type Service struct {
	driver  hypervisor.Driver
	cfg     model.SandboxConfig
	metrics metrics.Recorder
	logger  log.Logger
}

// NewService creates a new run scripts service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		driver:  cfg.Driver,
		cfg:     cfg.Sandbox,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Request contains the scripts to run.
type Request struct {
	Scripts []model.Script
	// Env is exposed to every script as the frozen `env` global object.
	Env map[string]string
}

// envPrelude returns the code that defines the env global. It's kept on the
// first line so script error positions only shift in columns.
func envPrelude(vars map[string]string) (string, error) {
	if len(vars) == 0 {
		return "", nil
	}

	for k := range vars {
		if !env.IsValidKey(k) {
			return "", fmt.Errorf("invalid env key %q: %w", k, model.ErrNotValid)
		}
	}

	data, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("could not encode env: %w", err)
	}

	return "const env = Object.freeze(" + string(data) + "); ", nil
}

// capture is the host print sink of the running script.
type capture struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *capture) print(s string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.WriteString(s)
}

func (c *capture) take() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.buf.String()
	c.buf.Reset()
	return s
}

// Run boots a sandbox and runs every script on a fresh interpreter, the sandbox
// is restored to its clean state between scripts. A script that poisons the
// sandbox is reported and the next script gets a newly booted sandbox.
func (s *Service) Run(ctx context.Context, req Request) (*model.RunResult, error) {
	if len(req.Scripts) == 0 {
		return nil, fmt.Errorf("at least one script is required: %w", model.ErrNotValid)
	}

	prelude, err := envPrelude(req.Env)
	if err != nil {
		return nil, err
	}

	out := &capture{}
	result := &model.RunResult{}

	var rt *sandbox.RuntimeSandbox
	defer func() {
		if rt != nil {
			_ = rt.Close()
		}
	}()

	for _, script := range req.Scripts {
		if rt == nil {
			var err error
			rt, err = s.boot(ctx, out)
			if err != nil {
				return nil, fmt.Errorf("could not boot sandbox: %w", err)
			}
			result.Boots++
			result.Snapshot = rt.Snapshot()
		}

		script.Code = prelude + script.Code
		res, next := s.runScript(ctx, rt, script, out)
		result.Scripts = append(result.Scripts, res)
		rt = next

		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *Service) boot(ctx context.Context, out *capture) (*sandbox.RuntimeSandbox, error) {
	b := sandbox.NewBuilder().
		WithStackSize(s.cfg.StackSize).
		WithHeapSize(s.cfg.HeapSize).
		WithInputDataSize(s.cfg.InputDataSize).
		WithOutputDataSize(s.cfg.OutputDataSize).
		WithCallTimeout(s.cfg.CallTimeout).
		WithHostPrint(out.print).
		WithMetricsRecorder(s.metrics).
		WithLogger(s.logger)
	if s.driver != nil {
		b.WithDriver(s.driver)
	}

	proto, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	rt, err := proto.LoadRuntime(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("Sandbox booted with clean snapshot %s", rt.Snapshot().Digest)

	return rt, nil
}

// runScript runs a script in a load, run and unload cycle. It returns the
// runtime sandbox for the next script or nil when it can't be reused.
func (s *Service) runScript(ctx context.Context, rt *sandbox.RuntimeSandbox, script model.Script, out *capture) (model.ScriptResult, *sandbox.RuntimeSandbox) {
	logger := s.logger.WithValues(log.Kv{"script": script.Name})
	res := model.ScriptResult{Name: script.Name}
	start := time.Now()

	_ = out.take()

	loaded, err := rt.LoadInterpreter(ctx)
	if err != nil {
		res.Err = err
		res.Poisoned = rt.Poisoned()
		res.Duration = time.Since(start)
		_ = rt.Close()
		return res, nil
	}

	res.Dispatched, res.Err = loaded.RunScript(ctx, script.Code)
	res.Output = out.take()
	res.Poisoned = loaded.Poisoned()
	if res.Err != nil {
		logger.Warningf("Script failed: %s", res.Err)
	}

	next, err := loaded.Unload(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrPoisoned) {
			logger.Errorf("Could not unload sandbox: %s", err)
			if res.Err == nil {
				res.Err = err
			}
		}
		res.Duration = time.Since(start)
		return res, nil
	}

	res.Duration = time.Since(start)
	return res, next
}
