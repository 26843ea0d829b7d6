package model

import "time"

// Outcome is the terminal state of one test within a run.
type Outcome uint8

const (
	// OutcomePassed indicates the test completed successfully.
	OutcomePassed Outcome = iota
	// OutcomeFailed indicates the test completed and failed.
	OutcomeFailed
	// OutcomeErrored indicates the test started but never reached a terminal
	// event, typically because the runner process died.
	OutcomeErrored
	// OutcomeRetired indicates the test was cancelled before or during
	// execution and its state is stale.
	OutcomeRetired
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeErrored:
		return "errored"
	case OutcomeRetired:
		return "retired"
	}
	return "unknown"
}

// TestResult is the terminal result of one test within a run.
type TestResult struct {
	// Canonical test ID (descriptor name)
	ID string `json:"id"`
	// 1-based position within the manifest the run was scheduled against
	Index int `json:"index"`
	// Terminal outcome
	Outcome Outcome `json:"outcome"`
	// Accumulated runner output attributed to this test
	Message string `json:"message,omitempty"`
	// Wall-clock duration as reported by the runner
	Duration time.Duration `json:"duration,omitempty"`
	// Source-anchored diagnostics extracted from the output of failed tests
	Decorations []Decoration `json:"decorations,omitempty"`
}

// Decoration is a source location extracted from test output with the
// configured error-line pattern.
type Decoration struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}
