// Package ctestout incrementally parses the combined output stream of a
// verbose ctest run, reclassifying interleaved lines into per-test lifecycle
// events.
package ctestout

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Line-shape patterns of the runner's output grammar, matched in order with
// first-match-wins. The shapes are mutually exclusive by construction.
var (
	// "    Start  3: suite1/testA"
	startRe = regexp.MustCompile(`^\s*Start\s+(\d+): (.*)$`)
	// "3: any output produced by the test"
	outputRe = regexp.MustCompile(`^(\d+): (.*)$`)
	// "1/3 Test #3: suite1/testA .................   Passed    0.05 sec"
	passedRe = regexp.MustCompile(`^\s*\d+/\d+ Test\s+#(\d+): (.+?) \.+ +Passed +([0-9.]+) sec$`)
	// "2/3 Test #2: suite1/testB .................***Failed    0.02 sec"
	failedRe = regexp.MustCompile(`^\s*\d+/\d+ Test\s+#(\d+): (.+?) \.+\*\*\*(.+?) +([0-9.]+) sec$`)
)

// Parser turns runner output lines into events. Output lines accumulate in
// ordered per-index buffers; a terminal line flushes its buffer into the end
// event's message. Buffers are keyed by positional index, never by name:
// mapping an index back to a test identity is the caller's job.
type Parser struct {
	buffers map[int][]string
}

// New creates an empty parser.
func New() *Parser {
	return &Parser{buffers: make(map[int][]string)}
}

// ParseLine classifies a single complete line (without its terminator) and
// returns the resulting events in emission order. Lines matching no pattern
// are runner banner or summary lines attributable to no single test; they
// are dropped and an empty slice is returned.
func (p *Parser) ParseLine(line string) []Event {
	if m := startRe.FindStringSubmatch(line); m != nil {
		index := atoi(m[1])
		p.buffers[index] = append(p.buffers[index], line)
		return []Event{
			StartEvent{Index: index, Name: m[2]},
			OutputEvent{Index: index, Line: line},
		}
	}

	if m := outputRe.FindStringSubmatch(line); m != nil {
		index := atoi(m[1])
		p.buffers[index] = append(p.buffers[index], line)
		return []Event{OutputEvent{Index: index, Line: line}}
	}

	// Terminal lines are forwarded as output but stay out of the buffer:
	// the accumulated message covers the test's own log, not the verdict.
	if m := passedRe.FindStringSubmatch(line); m != nil {
		index := atoi(m[1])
		return []Event{
			OutputEvent{Index: index, Line: line},
			p.end(index, m[2], true, "Passed", m[3]),
		}
	}

	if m := failedRe.FindStringSubmatch(line); m != nil {
		index := atoi(m[1])
		return []Event{
			OutputEvent{Index: index, Line: line},
			p.end(index, m[2], false, m[3], m[4]),
		}
	}

	return nil
}

// Run reads the stream to EOF, feeding every complete line through ParseLine
// and emitting the resulting events. Lines are only delivered whole: input
// is buffered until a line terminator is seen.
func (p *Parser) Run(r io.Reader, emit func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		for _, event := range p.ParseLine(line) {
			emit(event)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading runner output: %w", err)
	}
	return nil
}

// end flushes the buffer for index into a terminal event.
func (p *Parser) end(index int, name string, passed bool, status, seconds string) EndEvent {
	message := strings.Join(p.buffers[index], "\n")
	delete(p.buffers, index)

	var duration time.Duration
	if secs, err := strconv.ParseFloat(seconds, 64); err == nil {
		duration = time.Duration(secs * float64(time.Second))
	}

	return EndEvent{
		Index:    index,
		Name:     name,
		Passed:   passed,
		Status:   status,
		Duration: duration,
		Message:  message,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
