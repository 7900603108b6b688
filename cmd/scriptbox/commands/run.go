package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/scriptbox/internal/app/runscripts"
	metricsprom "github.com/slok/scriptbox/internal/metrics/prometheus"
	"github.com/slok/scriptbox/internal/model"
	"github.com/slok/scriptbox/internal/utils/env"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	files       []string
	envSpecs    []string
	timeout     time.Duration
	stackSize   uint64
	heapSize    uint64
	metricsFile string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run scripts, each one on a clean sandbox interpreter.")
	c.Cmd.Arg("files", "Script files to run in order.").Required().ExistingFilesVar(&c.files)
	c.Cmd.Flag("env", "Expose a value to the scripts as env.KEY (KEY=VALUE, or KEY to inherit from host). Repeatable.").Short('e').StringsVar(&c.envSpecs)
	c.Cmd.Flag("timeout", "Maximum duration of every guest call, a timed out script poisons the sandbox (0 disables it).").DurationVar(&c.timeout)
	c.Cmd.Flag("stack-size", "Guest stack size in bytes.").Uint64Var(&c.stackSize)
	c.Cmd.Flag("heap-size", "Guest heap size in bytes.").Uint64Var(&c.heapSize)
	c.Cmd.Flag("metrics-file", "Write the run Prometheus metrics to a file in text format.").StringVar(&c.metricsFile)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, err := LoadConfig(c.rootCmd.ConfigPath)
	if err != nil {
		return err
	}

	// Flags take precedence over the config file.
	sandboxCfg := cfg.Sandbox.Apply(model.DefaultSandboxConfig())
	sandboxCfg = SandboxConfig{
		StackSize:   c.stackSize,
		HeapSize:    c.heapSize,
		CallTimeout: c.timeout,
	}.Apply(sandboxCfg)

	flagEnv, err := env.ParseSpecs(c.envSpecs)
	if err != nil {
		return fmt.Errorf("invalid env: %w", err)
	}

	scripts := make([]model.Script, 0, len(c.files))
	for _, f := range c.files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("could not read script %q: %w", f, err)
		}
		scripts = append(scripts, model.Script{Name: filepath.Base(f), Code: string(data)})
	}

	reg := prometheus.NewRegistry()
	svc, err := runscripts.NewService(runscripts.ServiceConfig{
		Sandbox: sandboxCfg,
		Metrics: metricsprom.NewRecorder(reg),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, runscripts.Request{
		Scripts: scripts,
		Env:     env.Merge(cfg.Env, flagEnv),
	})
	if err != nil {
		return fmt.Errorf("could not run scripts: %w", err)
	}

	if err := c.rootCmd.Printer().PrintRunResult(*res); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	if c.metricsFile != "" {
		if err := prometheus.WriteToTextfile(c.metricsFile, reg); err != nil {
			return fmt.Errorf("could not write metrics: %w", err)
		}
		logger.Debugf("Metrics written to %s", c.metricsFile)
	}

	if failed := res.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d script(s) failed", failed, len(res.Scripts))
	}

	return nil
}
