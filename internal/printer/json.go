package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/scriptbox/internal/model"
)

// JSONPrinter prints scriptbox results in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// runOutput represents the result of a batch of scripts.
type runOutput struct {
	Snapshot snapshotOutput `json:"snapshot"`
	Boots    int            `json:"boots"`
	Scripts  []scriptOutput `json:"scripts"`
}

type snapshotOutput struct {
	VMID      string    `json:"vm_id"`
	Digest    string    `json:"digest"`
	Image     string    `json:"image,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type scriptOutput struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Dispatched bool   `json:"dispatched"`
	Poisoned   bool   `json:"poisoned"`
	Output     string `json:"output"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type checkOutput struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintRunResult prints the scripts results in JSON format.
func (j *JSONPrinter) PrintRunResult(res model.RunResult) error {
	output := runOutput{
		Snapshot: snapshotOutput{
			VMID:      res.Snapshot.VMID,
			Digest:    res.Snapshot.Digest,
			Image:     res.Snapshot.Image,
			SizeBytes: res.Snapshot.SizeBytes,
			CreatedAt: res.Snapshot.CreatedAt.UTC(),
		},
		Boots:   res.Boots,
		Scripts: make([]scriptOutput, 0, len(res.Scripts)),
	}

	for _, s := range res.Scripts {
		so := scriptOutput{
			Name:       s.Name,
			Status:     scriptStatus(s),
			Dispatched: s.Dispatched,
			Poisoned:   s.Poisoned,
			Output:     s.Output,
			DurationMS: s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			so.Error = s.Err.Error()
		}
		output.Scripts = append(output.Scripts, so)
	}

	return j.encode(output)
}

// PrintChecks prints preflight check results in JSON format.
func (j *JSONPrinter) PrintChecks(results []model.CheckResult) error {
	output := make([]checkOutput, 0, len(results))
	for _, r := range results {
		output = append(output, checkOutput{ID: r.ID, Status: string(r.Status), Message: r.Message})
	}

	return j.encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
