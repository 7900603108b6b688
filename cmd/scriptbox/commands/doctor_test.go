package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scriptbox/internal/model"
)

func TestChecksSummary(t *testing.T) {
	tests := map[string]struct {
		results []model.CheckResult
		exp     string
	}{
		"No checks should pass.": {
			exp: "All checks passed!",
		},

		"Only OK checks should pass.": {
			results: []model.CheckResult{{ID: "a", Status: model.CheckStatusOK}},
			exp:     "All checks passed!",
		},

		"Warnings should be summarized.": {
			results: []model.CheckResult{
				{ID: "a", Status: model.CheckStatusOK},
				{ID: "b", Status: model.CheckStatusWarning},
			},
			exp: "1 warning(s)",
		},

		"Errors and warnings should be summarized.": {
			results: []model.CheckResult{
				{ID: "a", Status: model.CheckStatusError},
				{ID: "b", Status: model.CheckStatusWarning},
				{ID: "c", Status: model.CheckStatusError},
			},
			exp: "2 error(s), 1 warning(s)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, checksSummary(countChecks(test.results)))
		})
	}
}
