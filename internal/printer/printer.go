package printer

import "github.com/slok/scriptbox/internal/model"

// Printer knows how to print scriptbox results in different formats.
type Printer interface {
	PrintRunResult(res model.RunResult) error
	PrintChecks(results []model.CheckResult) error
	PrintMessage(msg string) error
}
