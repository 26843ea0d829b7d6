package run

import (
	"context"
	"errors"
	"sync"

	"github.com/ctestx/ctestx/ctestout"
)

// ExecuteEach runs one runner process per test index with at most
// opts.Parallelism processes in flight. A finishing slot is backfilled
// immediately rather than waiting for a whole batch, so the bound is the
// only throttle. This mode trades the runner's own fixture coordination for
// per-test process isolation; the single-invocation path in Schedule remains
// the default.
//
// Per-test failures never abort the loop: a test whose process cannot be
// spawned or dies early simply produces no terminal event, and the caller
// accounts for it at run's end. Cancellation is checked before every spawn;
// indexes admitted after a cancel are skipped, leaving them without events
// for the caller to retire.
func (s *Scheduler) ExecuteEach(ctx context.Context, indexes []int, opts Options, emit func(ctestout.Event)) error {
	if len(indexes) == 0 {
		return nil
	}

	workerCount := opts.Parallelism
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(indexes) {
		workerCount = len(indexes)
	}

	// Child invocations cover one index each and are serial on their own.
	childOpts := opts
	childOpts.Parallelism = 1

	queue := make(chan int, len(indexes))
	for _, index := range indexes {
		queue <- index
	}
	close(queue)

	// Events from concurrent processes interleave; serialize the callback so
	// the caller never sees two events at once.
	var emitMu sync.Mutex
	serialEmit := func(e ctestout.Event) {
		emitMu.Lock()
		defer emitMu.Unlock()
		emit(e)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				if s.cancelled.Load() || ctx.Err() != nil {
					continue
				}
				proc, err := s.Schedule(ctx, []int{index}, childOpts)
				if errors.Is(err, ErrCancelled) {
					continue
				}
				if err != nil {
					s.logger.Warn().Err(err).Int("test", index).Msg("Failed to start test process")
					continue
				}
				if err := s.Execute(proc, serialEmit); err != nil {
					s.logger.Warn().Err(err).Int("test", index).Msg("Test process failed")
				}
			}
		}()
	}
	wg.Wait()

	return nil
}
