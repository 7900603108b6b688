package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scriptbox/internal/hypervisor/emulated"
	"github.com/slok/scriptbox/internal/model"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("doctor", "Run preflight checks of the host isolation capabilities.")

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	driver, err := emulated.NewDriver(emulated.DriverConfig{
		Logger: c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create isolation driver: %w", err)
	}

	results := driver.Check(ctx)

	p := c.rootCmd.Printer()
	if err := p.PrintChecks(results); err != nil {
		return fmt.Errorf("could not print checks: %w", err)
	}

	errs, warnings := countChecks(results)
	if c.rootCmd.Format == FormatTable {
		if err := p.PrintMessage("\n" + checksSummary(errs, warnings)); err != nil {
			return err
		}
	}

	if errs > 0 {
		return fmt.Errorf("preflight checks failed with %d error(s)", errs)
	}

	return nil
}

func countChecks(results []model.CheckResult) (errs, warnings int) {
	for _, r := range results {
		switch r.Status {
		case model.CheckStatusError:
			errs++
		case model.CheckStatusWarning:
			warnings++
		}
	}
	return errs, warnings
}

func checksSummary(errs, warnings int) string {
	if errs == 0 && warnings == 0 {
		return "All checks passed!"
	}

	var summary []string
	if errs > 0 {
		summary = append(summary, fmt.Sprintf("%d error(s)", errs))
	}
	if warnings > 0 {
		summary = append(summary, fmt.Sprintf("%d warning(s)", warnings))
	}
	return strings.Join(summary, ", ")
}
