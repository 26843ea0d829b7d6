package ctestout

import "time"

// Event is one lifecycle event reconstructed from the runner's interleaved
// output stream. The set of variants is closed: StartEvent, OutputEvent and
// EndEvent, consumed with an exhaustive type switch.
type Event interface {
	// TestIndex is the runner's 1-based positional index the event belongs to.
	TestIndex() int

	isEvent()
}

// StartEvent marks the beginning of one test's execution.
type StartEvent struct {
	Index int
	Name  string
}

// OutputEvent carries one output line attributed to a test. Start and
// terminal banner lines are forwarded as output too, since they are part of
// the test's captured log.
type OutputEvent struct {
	Index int
	Line  string
}

// EndEvent marks a test's terminal state. Message is the test's accumulated
// output, joined with line breaks.
type EndEvent struct {
	Index    int
	Name     string
	Passed   bool
	Status   string
	Duration time.Duration
	Message  string
}

func (e StartEvent) TestIndex() int  { return e.Index }
func (e OutputEvent) TestIndex() int { return e.Index }
func (e EndEvent) TestIndex() int    { return e.Index }

func (StartEvent) isEvent()  {}
func (OutputEvent) isEvent() {}
func (EndEvent) isEvent()    {}
