// Package adapter is the orchestration core: it loads the test manifest,
// projects it into a suite tree, schedules runs with bounded parallelism,
// and synthesizes debug launch configurations. A single state machine gates
// re-entrancy so at most one load or run is ever in flight.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ctestx/ctestx/config"
	"github.com/ctestx/ctestx/ctestout"
	"github.com/ctestx/ctestx/debug"
	"github.com/ctestx/ctestx/manifest"
	"github.com/ctestx/ctestx/model"
	"github.com/ctestx/ctestx/run"
	"github.com/ctestx/ctestx/suite"
	"github.com/ctestx/ctestx/vars"
)

// RunHooks are the optional callbacks a run reports through. Events for a
// single test arrive in start, output, result order; across concurrently
// running tests the interleaving is arbitrary, so consumers must key state
// by test ID.
type RunHooks struct {
	OnStart  func(id string)
	OnOutput func(id, line string)
	OnResult func(result model.TestResult)
}

// Adapter drives one workspace's test discovery and execution.
type Adapter struct {
	logger    zerolog.Logger
	settings  *config.Settings
	resolver  *vars.Resolver
	prober    vars.Prober
	scheduler *run.Scheduler
	machine   *Machine
	errorRe   *regexp.Regexp

	// Replaced atomically on every successful load; guarded by the machine's
	// load/run mutual exclusion, so runs always see a consistent snapshot.
	descriptors []model.TestDescriptor
	indexByID   map[string]int
	tree        *model.SuiteNode
}

// New creates an adapter for the given workspace. A nil spawner uses real
// OS processes.
func New(logger zerolog.Logger, settings *config.Settings, workspaceFolder string, spawner run.Spawner) *Adapter {
	prober := vars.NewExecProber(logger, workspaceFolder, settings.Probes)

	var errorRe *regexp.Regexp
	if settings.ErrorPattern != "" {
		re, err := regexp.Compile(settings.ErrorPattern)
		if err != nil {
			logger.Warn().Err(err).Msg("Invalid error pattern, source decorations disabled")
		} else {
			errorRe = re
		}
	}

	return &Adapter{
		logger:    logger,
		settings:  settings,
		resolver:  vars.New(workspaceFolder, prober),
		prober:    prober,
		scheduler: run.NewScheduler(logger, spawner),
		machine:   NewMachine(),
		errorRe:   errorRe,
	}
}

// State reports the adapter's lifecycle state.
func (a *Adapter) State() State {
	return a.machine.State()
}

// Tree returns the suite tree of the last successful load.
func (a *Adapter) Tree() *model.SuiteNode {
	return a.tree
}

// Load discovers tests and rebuilds the suite tree. It is silently ignored
// unless the adapter is idle. A reload replaces the descriptor list
// atomically: previous indexes and tree nodes become invalid.
func (a *Adapter) Load(ctx context.Context) (*model.SuiteNode, error) {
	if _, _, ok := a.machine.Apply(InputLoad); !ok {
		a.logger.Debug().Stringer("state", a.machine.State()).Msg("Load ignored")
		return nil, nil
	}
	defer a.machine.Apply(InputLoadSettled)

	descriptors, err := manifest.Load(ctx, a.logger, manifest.LoadOptions{
		CTestPath:   a.resolver.Resolve(ctx, a.settings.CTestPath),
		Dir:         a.buildDir(ctx),
		BuildConfig: a.buildConfig(ctx),
		ExtraArgs:   a.resolver.ResolveSlice(ctx, a.settings.ExtraCTestLoadArgs),
	})
	if err != nil {
		a.descriptors = nil
		a.indexByID = nil
		a.tree = nil
		return nil, err
	}

	indexByID := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		indexByID[d.Name] = i + 1
	}

	a.descriptors = descriptors
	a.indexByID = indexByID
	a.tree = suite.Build(descriptors, suite.Options{
		Delimiter:          a.settings.SuiteDelimiter,
		SourceFileProperty: a.settings.TestFileVar,
		SourceLineProperty: a.settings.TestLineVar,
	})

	return a.tree, nil
}

// Run executes the given test IDs, or every discovered test when ids is
// empty. It is silently ignored unless the adapter is idle, and always
// returns the adapter to idle when its work settles. Scheduled tests that
// never reach a terminal event are reported as retired when the run was
// cancelled and as errored otherwise.
func (a *Adapter) Run(ctx context.Context, ids []string, hooks RunHooks) error {
	if _, _, ok := a.machine.Apply(InputRun); !ok {
		a.logger.Debug().Stringer("state", a.machine.State()).Msg("Run ignored")
		return nil
	}
	defer a.machine.Apply(InputRunSettled)

	if len(a.descriptors) == 0 {
		return fmt.Errorf("no test manifest loaded")
	}

	// The index-to-identity map is built before anything is scheduled;
	// events and late accounting both resolve through it.
	indexes, idByIndex := a.selectIndexes(ids)
	if len(idByIndex) == 0 {
		return nil
	}

	opts, err := a.runOptions(ctx)
	if err != nil {
		return err
	}

	a.scheduler.Begin()

	finished := make(map[int]bool)
	emit := func(event ctestout.Event) {
		switch ev := event.(type) {
		case ctestout.StartEvent:
			if hooks.OnStart != nil {
				if id, ok := idByIndex[ev.Index]; ok {
					hooks.OnStart(id)
				}
			}
		case ctestout.OutputEvent:
			if hooks.OnOutput != nil {
				if id, ok := idByIndex[ev.Index]; ok {
					hooks.OnOutput(id, ev.Line)
				}
			}
		case ctestout.EndEvent:
			finished[ev.Index] = true
			if hooks.OnResult != nil {
				hooks.OnResult(a.makeResult(ev, idByIndex))
			}
		}
	}

	if a.settings.IsolateTests {
		err = a.scheduler.ExecuteEach(ctx, allIndexes(indexes, len(a.descriptors)), opts, emit)
	} else {
		var proc *run.Process
		proc, err = a.scheduler.Schedule(ctx, indexes, opts)
		if err == nil {
			err = a.scheduler.Execute(proc, emit)
		}
	}
	// A cancel racing the spawn refuses the process instead of launching it;
	// the affected tests settle as retired below.
	if err != nil && !errors.Is(err, run.ErrCancelled) {
		return err
	}

	a.settleRemaining(idByIndex, finished, hooks)
	return nil
}

// Cancel requests termination of the in-flight run. It is a no-op unless a
// run is in flight. The run loop observes the cancelled state at its next
// checkpoint, stops launching tests and retires the remainder.
func (a *Adapter) Cancel() {
	_, effects, ok := a.machine.Apply(InputCancel)
	if !ok {
		return
	}
	for _, effect := range effects {
		switch effect {
		case EffectTerminateProcesses:
			a.scheduler.CancelAll()
		case EffectRetireRemaining:
			// Performed by the run loop once its processes settle, so
			// completed tests keep their terminal results.
		case EffectBeginLoad, EffectBeginRun:
		}
	}
}

// Debug synthesizes a launch configuration for one test. A test ID that no
// longer resolves is a silent no-op. When the caller supplies no base
// configuration, the one named by the debugConfig setting is loaded; absent
// that too, the built-in default applies.
func (a *Adapter) Debug(ctx context.Context, id string, base debug.LaunchConfig) (debug.LaunchConfig, bool) {
	index, ok := a.indexByID[id]
	if !ok {
		a.logger.Debug().Str("test", id).Msg("Debug ignored: unknown test")
		return nil, false
	}
	desc := a.descriptors[index-1]
	if base == nil {
		base = a.loadBaseLaunchConfig(ctx)
	}
	extraEnv := a.resolver.ResolveMap(ctx, a.settings.ExtraCTestEnvVars)
	return debug.Synthesize(&desc, base, extraEnv), true
}

// loadBaseLaunchConfig reads the base launch configuration named by the
// debugConfig setting. A missing or unreadable file falls back to the
// built-in default rather than failing the debug request.
func (a *Adapter) loadBaseLaunchConfig(ctx context.Context) debug.LaunchConfig {
	if a.settings.DebugConfig == "" {
		return nil
	}
	path := a.resolver.Resolve(ctx, a.settings.DebugConfig)
	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("Cannot read debug configuration")
		return nil
	}
	var base debug.LaunchConfig
	if err := json.Unmarshal(data, &base); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("Invalid debug configuration")
		return nil
	}
	return base
}

// selectIndexes maps requested IDs to 1-based run indexes. Empty ids means
// everything; unknown IDs are skipped. The returned index list is sorted so
// the runner sees a stable selection argument.
func (a *Adapter) selectIndexes(ids []string) ([]int, map[int]string) {
	idByIndex := make(map[int]string)
	if len(ids) == 0 {
		for i, d := range a.descriptors {
			idByIndex[i+1] = d.Name
		}
		return nil, idByIndex
	}

	var indexes []int
	for _, id := range ids {
		index, ok := a.indexByID[id]
		if !ok {
			a.logger.Warn().Str("test", id).Msg("Skipping unknown test")
			continue
		}
		if _, dup := idByIndex[index]; dup {
			continue
		}
		indexes = append(indexes, index)
		idByIndex[index] = id
	}
	sort.Ints(indexes)
	return indexes, idByIndex
}

// buildDir resolves the configured build directory, delegating to the
// cooperating tool's probe when the setting is empty.
func (a *Adapter) buildDir(ctx context.Context) string {
	if dir := a.resolver.Resolve(ctx, a.settings.BuildDir); dir != "" {
		return dir
	}
	if value, ok := a.prober.Probe(ctx, vars.ProbeBuildDirectory); ok {
		return value
	}
	return ""
}

// buildConfig resolves the build-configuration label, delegating to the
// cooperating tool's probe when the setting is empty.
func (a *Adapter) buildConfig(ctx context.Context) string {
	if cfg := a.resolver.Resolve(ctx, a.settings.BuildConfig); cfg != "" {
		return cfg
	}
	if value, ok := a.prober.Probe(ctx, vars.ProbeBuildType); ok {
		return value
	}
	return ""
}

// runOptions builds the immutable per-run snapshot from the settings and
// the resolver.
func (a *Adapter) runOptions(ctx context.Context) (run.Options, error) {
	dir := a.buildDir(ctx)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return run.Options{}, fmt.Errorf("build directory %s does not exist", dir)
	}

	env := os.Environ()
	if a.settings.EnvFile != "" {
		path := a.resolver.Resolve(ctx, a.settings.EnvFile)
		values, err := godotenv.Read(path)
		if err != nil {
			a.logger.Debug().Err(err).Str("path", path).Msg("Skipping env file")
		} else {
			env = appendEnv(env, values)
		}
	}
	env = appendEnv(env, a.resolver.ResolveMap(ctx, a.settings.ExtraCTestEnvVars))

	return run.Options{
		CTestPath:   a.resolver.Resolve(ctx, a.settings.CTestPath),
		Dir:         dir,
		Env:         env,
		BuildConfig: a.buildConfig(ctx),
		Parallelism: a.resolveParallelism(ctx),
		ExtraArgs:   a.resolver.ResolveSlice(ctx, a.settings.ExtraCTestRunArgs),
	}, nil
}

// resolveParallelism applies the job-count setting: 0 delegates to the
// cooperating tool's setting and falls back to the host CPU count; 1 or
// below disables parallelism.
func (a *Adapter) resolveParallelism(ctx context.Context) int {
	jobs := a.settings.ParallelJobs
	if jobs == 0 {
		if value, ok := a.prober.Probe(ctx, vars.ProbeCTestParallelism); ok {
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				return n
			}
		}
		return runtime.NumCPU()
	}
	if jobs < 1 {
		return 1
	}
	return jobs
}

// makeResult converts a terminal event into the test's result, extracting
// source decorations from failed output.
func (a *Adapter) makeResult(ev ctestout.EndEvent, idByIndex map[int]string) model.TestResult {
	outcome := model.OutcomeFailed
	if ev.Passed {
		outcome = model.OutcomePassed
	}
	result := model.TestResult{
		ID:       idByIndex[ev.Index],
		Index:    ev.Index,
		Outcome:  outcome,
		Message:  ev.Message,
		Duration: ev.Duration,
	}
	if !ev.Passed {
		result.Decorations = ctestout.ExtractDecorations(a.errorRe, ev.Message)
	}
	return result
}

// settleRemaining reports every scheduled test that never reached a
// terminal event, exactly once per test: retired after a cancel, errored
// otherwise (e.g. the runner died mid-run).
func (a *Adapter) settleRemaining(idByIndex map[int]string, finished map[int]bool, hooks RunHooks) {
	cancelled := a.machine.State() == StateCancelled
	if hooks.OnResult == nil {
		return
	}

	remaining := make([]int, 0, len(idByIndex))
	for index := range idByIndex {
		if !finished[index] {
			remaining = append(remaining, index)
		}
	}
	sort.Ints(remaining)

	for _, index := range remaining {
		result := model.TestResult{
			ID:    idByIndex[index],
			Index: index,
		}
		if cancelled {
			result.Outcome = model.OutcomeRetired
		} else {
			result.Outcome = model.OutcomeErrored
			result.Message = "test produced no result; the runner may have exited early"
		}
		hooks.OnResult(result)
	}
}

// appendEnv appends values as KEY=VALUE entries in deterministic order.
// Later entries win over earlier ones when the OS environment is applied.
func appendEnv(env []string, values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+values[k])
	}
	return env
}

// allIndexes expands an empty selection into every position for the
// per-test execution mode, which addresses tests explicitly.
func allIndexes(indexes []int, total int) []int {
	if len(indexes) > 0 {
		return indexes
	}
	all := make([]int, total)
	for i := range all {
		all[i] = i + 1
	}
	return all
}
