// Package run schedules runner processes for a selected set of tests and
// streams their parsed lifecycle events back to the caller.
package run

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/ctestx/ctestx/ctestout"
)

// Options is the resolved, immutable snapshot for one run. It is created
// fresh per run and never mutated while the run is in flight.
type Options struct {
	// CTestPath is the runner executable
	CTestPath string
	// Dir is the working directory tests run in
	Dir string
	// Env is the fully merged environment, "KEY=VALUE" entries
	Env []string
	// BuildConfig is the optional build-configuration label
	BuildConfig string
	// Parallelism is the resolved job bound; 1 or below means serial
	Parallelism int
	// ExtraArgs are passed through verbatim after the built-in flags
	ExtraArgs []string
}

// ErrCancelled reports that the run was cancelled before a process could be
// spawned. Callers treat it as settled work, not a failure.
var ErrCancelled = errors.New("test run cancelled")

// Process is one scheduled runner invocation.
type Process struct {
	id     int
	handle Handle
}

// Scheduler launches runner processes and parses their combined output into
// events. One scheduler instance belongs to one adapter; its only mutable
// state is the handle registry and the cancellation flag, both touched from
// the control flow of a single run at a time.
type Scheduler struct {
	logger    zerolog.Logger
	spawner   Spawner
	registry  *Registry
	cancelled atomic.Bool
}

// NewScheduler creates a scheduler. A nil spawner defaults to real OS
// processes.
func NewScheduler(logger zerolog.Logger, spawner Spawner) *Scheduler {
	if spawner == nil {
		spawner = NewExecSpawner()
	}
	return &Scheduler{
		logger:   logger,
		spawner:  spawner,
		registry: NewRegistry(),
	}
}

// Begin resets the cancellation flag for a new run.
func (s *Scheduler) Begin() {
	s.cancelled.Store(false)
}

// Cancelled reports whether CancelAll was called since Begin.
func (s *Scheduler) Cancelled() bool {
	return s.cancelled.Load()
}

// CancelAll requests termination of every in-flight process and stops the
// scheduler from launching further ones.
func (s *Scheduler) CancelAll() {
	s.cancelled.Store(true)
	s.registry.TerminateAll()
}

// Schedule launches a single runner process covering the given 1-based test
// indexes. An empty index list runs everything. The whole selection goes to
// one invocation on purpose: the runner manages fixtures and resource locks
// between the selected tests, which per-test invocation would break.
func (s *Scheduler) Schedule(ctx context.Context, indexes []int, opts Options) (*Process, error) {
	// A cancel landing before the spawn would miss the registry sweep and
	// leave an unsignalled process behind.
	if s.cancelled.Load() {
		return nil, ErrCancelled
	}

	args := buildArgs(indexes, opts)

	s.logger.Debug().
		Str("dir", opts.Dir).
		Str("command", shellescape.QuoteCommand(append([]string{opts.CTestPath}, args...))).
		Msg("Starting test run")

	handle, err := s.spawner.Spawn(ctx, CommandSpec{
		Path: opts.CTestPath,
		Args: args,
		Dir:  opts.Dir,
		Env:  opts.Env,
	})
	if err != nil {
		return nil, err
	}

	return &Process{id: s.registry.Add(handle), handle: handle}, nil
}

// Execute parses the process's combined output into events until the stream
// ends, then waits for the process to exit. It settles on process exit no
// matter how many scheduled tests reached a terminal event; a crashed runner
// leaves start events without matching ends, and callers must treat those
// tests as incomplete. A non-zero exit is not an error here: per-test
// verdicts come from the event stream.
func (s *Scheduler) Execute(proc *Process, emit func(ctestout.Event)) error {
	defer s.registry.Remove(proc.id)

	parser := ctestout.New()
	if err := parser.Run(proc.handle.Stdout(), emit); err != nil {
		s.logger.Warn().Err(err).Msg("Runner output stream broke off")
	}

	if err := proc.handle.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return err
		}
		s.logger.Debug().Int("exit_code", exitErr.ExitCode()).Msg("Runner exited non-zero")
	}
	return nil
}

// buildArgs assembles the runner argv. The job flag is only emitted for a
// bound above 1; the index selection uses the runner's stride-less "-I"
// form.
func buildArgs(indexes []int, opts Options) []string {
	var args []string
	if opts.BuildConfig != "" {
		args = append(args, "--build-config", opts.BuildConfig)
	}
	args = append(args, "-V")
	if opts.Parallelism > 1 {
		args = append(args, "-j", strconv.Itoa(opts.Parallelism))
	}
	if len(indexes) > 0 {
		parts := make([]string, 0, len(indexes)+3)
		parts = append(parts, "0", "0", "0")
		for _, index := range indexes {
			parts = append(parts, strconv.Itoa(index))
		}
		args = append(args, "-I", strings.Join(parts, ","))
	}
	return append(args, opts.ExtraArgs...)
}
