package printer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := map[string]struct {
		input int64
		exp   string
	}{
		"zero bytes": {
			input: 0,
			exp:   "0 B",
		},
		"negative bytes should return zero": {
			input: -100,
			exp:   "0 B",
		},
		"small bytes": {
			input: 512,
			exp:   "512 B",
		},
		"one kilobyte": {
			input: 1024,
			exp:   "1.0 KB",
		},
		"kilobytes": {
			input: 1536,
			exp:   "1.5 KB",
		},
		"megabytes": {
			input: 700 * 1024 * 1024,
			exp:   "700.0 MB",
		},
		"gigabytes": {
			input: 10 * 1024 * 1024 * 1024,
			exp:   "10.0 GB",
		},
		"terabytes": {
			input: 2 * 1024 * 1024 * 1024 * 1024,
			exp:   "2.0 TB",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, FormatBytes(test.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		input time.Duration
		exp   string
	}{
		"microseconds": {
			input: 850*time.Microsecond + 300*time.Nanosecond,
			exp:   "850µs",
		},
		"milliseconds": {
			input: 12*time.Millisecond + 340*time.Microsecond,
			exp:   "12.3ms",
		},
		"seconds": {
			input: 1523 * time.Millisecond,
			exp:   "1.52s",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, FormatDuration(test.input))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 30, 10, 0, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-01-30 09:00:05 UTC", FormatTimestamp(ts))
}
