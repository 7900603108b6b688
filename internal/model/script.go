package model

import "time"

// Script is a named script ready to run in a sandbox.
type Script struct {
	Name string
	Code string
}

// ScriptResult is the result of running a script in a clean sandbox cycle.
type ScriptResult struct {
	Name string
	// Dispatched is true when the interpreter received the script, a script
	// that threw is still dispatched.
	Dispatched bool
	Output     string
	Duration   time.Duration
	// Poisoned is true when the script faulted the isolated context.
	Poisoned bool
	Err      error
}

// RunResult is the result of running a batch of scripts.
type RunResult struct {
	Snapshot SnapshotInfo
	// Boots is the number of times an isolated context was booted for the batch.
	Boots   int
	Scripts []ScriptResult
}

// Failed returns the number of scripts that could not run.
func (r RunResult) Failed() int {
	n := 0
	for _, s := range r.Scripts {
		if s.Err != nil || !s.Dispatched {
			n++
		}
	}
	return n
}
