package printer_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptbox/internal/model"
	"github.com/slok/scriptbox/internal/printer"
)

func runResultFixture() model.RunResult {
	return model.RunResult{
		Snapshot: model.SnapshotInfo{
			VMID:      "01JB7Z3W6QXK2Y4N5P8R9S0T1V",
			Digest:    "blake3:af1349b9f5f9a1a6",
			SizeBytes: 1536,
			CreatedAt: time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC),
			Image:     "sha256:4b1e",
		},
		Boots: 2,
		Scripts: []model.ScriptResult{
			{Name: "hello.js", Dispatched: true, Output: "hello\n", Duration: 3 * time.Millisecond},
			{Name: "loop.js", Poisoned: true, Err: fmt.Errorf("sandbox poisoned"), Duration: time.Second},
		},
	}
}

func TestTablePrinterPrintRunResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintRunResult(runResultFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "==> hello.js <==\nhello\n")
	assert.NotContains(t, out, "==> loop.js <==")
	assert.Contains(t, out, "hello.js  dispatched  3ms       -")
	assert.Contains(t, out, "loop.js   poisoned    1s        sandbox poisoned")
	assert.Contains(t, out, "Snapshot:   blake3:af1349b9f5f9a1a6 (1.5 KB, 2026-01-30 10:00:00 UTC)")
	assert.Contains(t, out, "Image:      sha256:4b1e\nBoots:      2")
}

func TestJSONPrinterPrintRunResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintRunResult(runResultFixture())
	require.NoError(t, err)

	var got struct {
		Boots    int `json:"boots"`
		Snapshot struct {
			Digest string `json:"digest"`
			Image  string `json:"image"`
		} `json:"snapshot"`
		Scripts []struct {
			Name       string `json:"name"`
			Status     string `json:"status"`
			Output     string `json:"output"`
			DurationMS int64  `json:"duration_ms"`
			Error      string `json:"error"`
		} `json:"scripts"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, 2, got.Boots)
	assert.Equal(t, "blake3:af1349b9f5f9a1a6", got.Snapshot.Digest)
	assert.Equal(t, "sha256:4b1e", got.Snapshot.Image)
	require.Len(t, got.Scripts, 2)
	assert.Equal(t, "dispatched", got.Scripts[0].Status)
	assert.Equal(t, "hello\n", got.Scripts[0].Output)
	assert.Equal(t, int64(3), got.Scripts[0].DurationMS)
	assert.Equal(t, "poisoned", got.Scripts[1].Status)
	assert.Equal(t, "sandbox poisoned", got.Scripts[1].Error)
}

func TestPrintChecks(t *testing.T) {
	checks := []model.CheckResult{
		{ID: "emulated_runtime", Status: model.CheckStatusOK, Message: "available"},
		{ID: "kvm_available", Status: model.CheckStatusWarning, Message: "/dev/kvm not found"},
	}

	tests := map[string]struct {
		printer func(w *bytes.Buffer) printer.Printer
		exp     []string
	}{
		"Table printer should print a row per check.": {
			printer: func(w *bytes.Buffer) printer.Printer { return printer.NewTablePrinter(w) },
			exp: []string{
				"CHECK             STATUS   MESSAGE",
				"emulated_runtime  OK       available",
				"kvm_available     WARNING  /dev/kvm not found",
			},
		},

		"JSON printer should print a list of checks.": {
			printer: func(w *bytes.Buffer) printer.Printer { return printer.NewJSONPrinter(w) },
			exp: []string{
				`"id": "kvm_available"`,
				`"status": "warning"`,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			err := test.printer(&buf).PrintChecks(checks)
			require.NoError(t, err)

			for _, exp := range test.exp {
				assert.Contains(t, buf.String(), exp)
			}
		})
	}
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
