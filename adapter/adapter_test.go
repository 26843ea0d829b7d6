package adapter

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ctestx/ctestx/config"
	"github.com/ctestx/ctestx/debug"
	"github.com/ctestx/ctestx/model"
	"github.com/ctestx/ctestx/run"
	"github.com/ctestx/ctestx/suite"
	"github.com/ctestx/ctestx/vars"
)

type stubProber map[string]string

func (p stubProber) Probe(_ context.Context, name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

type scriptedHandle struct {
	out        io.Reader
	terminated atomic.Bool
}

func (h *scriptedHandle) Stdout() io.Reader { return h.out }
func (h *scriptedHandle) Wait() error       { return nil }
func (h *scriptedHandle) Terminate() error {
	h.terminated.Store(true)
	return nil
}

type scriptedSpawner struct {
	mu      sync.Mutex
	specs   []run.CommandSpec
	handles []*scriptedHandle
	script  func(spec run.CommandSpec) io.Reader
}

func (s *scriptedSpawner) Spawn(_ context.Context, spec run.CommandSpec) (run.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	var out io.Reader = strings.NewReader("")
	if s.script != nil {
		out = s.script(spec)
	}
	handle := &scriptedHandle{out: out}
	s.handles = append(s.handles, handle)
	return handle, nil
}

// seeded builds an adapter with a preloaded manifest, sidestepping the
// runner invocation that Load would perform.
func seeded(t *testing.T, spawner run.Spawner, descs ...model.TestDescriptor) *Adapter {
	t.Helper()
	settings := config.Default()
	settings.BuildDir = t.TempDir()
	settings.ParallelJobs = 1
	settings.SuiteDelimiter = "/"

	a := New(zerolog.Nop(), settings, settings.BuildDir, spawner)
	a.descriptors = descs
	a.indexByID = make(map[string]int, len(descs))
	for i, d := range descs {
		a.indexByID[d.Name] = i + 1
	}
	a.tree = suite.Build(descs, suite.Options{Delimiter: settings.SuiteDelimiter})
	return a
}

func descriptor(name string, command ...string) model.TestDescriptor {
	if len(command) == 0 {
		command = []string{"/build/tests/" + name}
	}
	return model.TestDescriptor{Name: name, Command: command}
}

func TestAdapter_RunReportsResults(t *testing.T) {
	stream := "    Start  1: add\n" +
		"1: all good\n" +
		"1/2 Test #1: add ...............   Passed    0.01 sec\n" +
		"    Start  2: mul\n" +
		"2: src/mul.c:12: error: expected 9, got 8\n" +
		"2/2 Test #2: mul ...............***Failed    0.02 sec\n"

	spawner := &scriptedSpawner{script: func(run.CommandSpec) io.Reader {
		return strings.NewReader(stream)
	}}
	a := seeded(t, spawner, descriptor("add"), descriptor("mul"))

	var results []model.TestResult
	var starts []string
	err := a.Run(context.Background(), nil, RunHooks{
		OnStart:  func(id string) { starts = append(starts, id) },
		OnResult: func(r model.TestResult) { results = append(results, r) },
	})
	require.NoError(t, err)
	require.Equal(t, StateIdle, a.State())

	require.Equal(t, []string{"add", "mul"}, starts)
	require.Len(t, results, 2)

	require.Equal(t, "add", results[0].ID)
	require.Equal(t, model.OutcomePassed, results[0].Outcome)
	require.Contains(t, results[0].Message, "all good")

	require.Equal(t, "mul", results[1].ID)
	require.Equal(t, model.OutcomeFailed, results[1].Outcome)
	require.Len(t, results[1].Decorations, 1)
	require.Equal(t, "src/mul.c", results[1].Decorations[0].File)
	require.Equal(t, 12, results[1].Decorations[0].Line)
}

func TestAdapter_RunSubsetSelection(t *testing.T) {
	spawner := &scriptedSpawner{}
	a := seeded(t, spawner, descriptor("a"), descriptor("b"), descriptor("c"))

	err := a.Run(context.Background(), []string{"c", "a", "ghost"}, RunHooks{})
	require.NoError(t, err)

	require.Len(t, spawner.specs, 1)
	require.Contains(t, spawner.specs[0].Args, "-I")
	for i, arg := range spawner.specs[0].Args {
		if arg == "-I" {
			require.Equal(t, "0,0,0,1,3", spawner.specs[0].Args[i+1],
				"selection must be sorted positional indexes, unknown IDs skipped")
		}
	}
}

func TestAdapter_RunWithoutManifest(t *testing.T) {
	a := New(zerolog.Nop(), config.Default(), t.TempDir(), &scriptedSpawner{})
	err := a.Run(context.Background(), nil, RunHooks{})
	require.Error(t, err)
	require.Equal(t, StateIdle, a.State())
}

func TestAdapter_RunIgnoredUnlessIdle(t *testing.T) {
	release := make(chan struct{})
	pr, pw := io.Pipe()
	spawner := &scriptedSpawner{script: func(run.CommandSpec) io.Reader {
		close(release)
		return pr
	}}
	a := seeded(t, spawner, descriptor("a"))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), nil, RunHooks{}) }()
	<-release

	// Second run while the first is in flight: silently ignored
	require.NoError(t, a.Run(context.Background(), nil, RunHooks{}))
	require.Len(t, spawner.specs, 1)

	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	require.Equal(t, StateIdle, a.State())
}

func TestAdapter_CancelRetiresRemainingExactlyOnce(t *testing.T) {
	pr, pw := io.Pipe()
	spawner := &scriptedSpawner{script: func(run.CommandSpec) io.Reader { return pr }}
	a := seeded(t, spawner, descriptor("a"), descriptor("b"), descriptor("c"))

	results := make(chan model.TestResult, 8)
	done := make(chan error, 1)
	go func() {
		done <- a.Run(context.Background(), nil, RunHooks{
			OnResult: func(r model.TestResult) { results <- r },
		})
	}()

	_, err := io.WriteString(pw, "    Start  1: a\n1/3 Test #1: a ...............   Passed    0.01 sec\n")
	require.NoError(t, err)

	first := <-results
	require.Equal(t, "a", first.ID)
	require.Equal(t, model.OutcomePassed, first.Outcome)

	a.Cancel()
	require.Equal(t, StateCancelled, a.State())
	require.True(t, spawner.handles[0].terminated.Load(), "in-flight process must get a termination request")

	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	require.Equal(t, StateIdle, a.State())
	close(results)

	retired := make(map[string]int)
	for r := range results {
		require.Equal(t, model.OutcomeRetired, r.Outcome)
		retired[r.ID]++
	}
	require.Equal(t, map[string]int{"b": 1, "c": 1}, retired,
		"completed tests keep their verdict; the rest retire exactly once")
}

func TestAdapter_RunnerDeathMarksUnfinishedErrored(t *testing.T) {
	// The runner dies after starting test 1 and never prints a verdict.
	spawner := &scriptedSpawner{script: func(run.CommandSpec) io.Reader {
		return strings.NewReader("    Start  1: a\n1: partial output\n")
	}}
	a := seeded(t, spawner, descriptor("a"), descriptor("b"))

	var results []model.TestResult
	err := a.Run(context.Background(), nil, RunHooks{
		OnResult: func(r model.TestResult) { results = append(results, r) },
	})
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		require.Equal(t, model.OutcomeErrored, r.Outcome)
	}
}

func TestAdapter_CancelIsNoOpUnlessRunning(t *testing.T) {
	a := seeded(t, &scriptedSpawner{}, descriptor("a"))
	a.Cancel()
	require.Equal(t, StateIdle, a.State())
}

func TestAdapter_DebugSynthesizesLaunchConfig(t *testing.T) {
	desc := model.TestDescriptor{
		Name:    "suite/mul",
		Command: []string{"/build/tests/mul", "--case", "9"},
		Properties: []model.Property{
			{Name: model.PropertyWorkingDirectory, Value: model.PropertyValue{String: "/build/tests"}},
			{Name: model.PropertyEnvironment, Value: model.PropertyValue{List: []string{"MODE=strict"}}},
		},
	}
	a := seeded(t, &scriptedSpawner{}, desc)

	launch, ok := a.Debug(context.Background(), "suite/mul", debug.LaunchConfig{"type": "cppdbg", "MIMode": "gdb"})
	require.True(t, ok)
	require.Equal(t, "/build/tests/mul", launch["program"])
	require.Equal(t, []string{"--case", "9"}, launch["args"])
	require.Equal(t, "/build/tests", launch["cwd"])
	require.Equal(t, "gdb", launch["MIMode"])
	require.Equal(t, []debug.EnvEntry{{Name: "MODE", Value: "strict"}}, launch["environment"])
}

func TestAdapter_DebugUsesConfiguredBaseConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "lldb",
		"request": "launch",
		"stopOnEntry": true
	}`), 0o644))

	desc := model.TestDescriptor{
		Name:    "t",
		Command: []string{"/bin/t"},
		Properties: []model.Property{
			{Name: model.PropertyEnvironment, Value: model.PropertyValue{List: []string{"MODE=strict"}}},
		},
	}
	a := seeded(t, &scriptedSpawner{}, desc)
	a.settings.DebugConfig = path

	launch, ok := a.Debug(context.Background(), "t", nil)
	require.True(t, ok)
	require.Equal(t, "lldb", launch["type"])
	require.Equal(t, true, launch["stopOnEntry"])
	require.Equal(t, map[string]string{"MODE": "strict"}, launch["env"])

	// An explicit base wins over the configured one
	launch, ok = a.Debug(context.Background(), "t", debug.LaunchConfig{"type": "cppdbg"})
	require.True(t, ok)
	require.Equal(t, "cppdbg", launch["type"])
}

func TestAdapter_DebugUnreadableConfigFallsBackToDefault(t *testing.T) {
	a := seeded(t, &scriptedSpawner{}, descriptor("t"))
	a.settings.DebugConfig = filepath.Join(t.TempDir(), "gone.json")

	launch, ok := a.Debug(context.Background(), "t", nil)
	require.True(t, ok)
	require.Equal(t, "cppdbg", launch["type"])
}

func TestAdapter_DebugUnknownTestIsSilentNoOp(t *testing.T) {
	a := seeded(t, &scriptedSpawner{}, descriptor("a"))
	launch, ok := a.Debug(context.Background(), "vanished", nil)
	require.False(t, ok)
	require.Nil(t, launch)
}

func TestAdapter_IsolatedRunBoundsAndCompletes(t *testing.T) {
	spawner := &scriptedSpawner{script: func(spec run.CommandSpec) io.Reader {
		index := ""
		for i, arg := range spec.Args {
			if arg == "-I" {
				index = strings.TrimPrefix(spec.Args[i+1], "0,0,0,")
			}
		}
		return strings.NewReader("    Start  " + index + ": t\n" +
			"1/1 Test #" + index + ": t ...............   Passed    0.01 sec\n")
	}}
	a := seeded(t, spawner, descriptor("a"), descriptor("b"), descriptor("c"))
	a.settings.IsolateTests = true
	a.settings.ParallelJobs = 2

	var mu sync.Mutex
	var results []model.TestResult
	err := a.Run(context.Background(), nil, RunHooks{
		OnResult: func(r model.TestResult) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		},
	})
	require.NoError(t, err)
	require.Len(t, spawner.specs, 3, "one runner process per test")
	require.Len(t, results, 3)

	ids := make(map[string]model.Outcome)
	for _, r := range results {
		ids[r.ID] = r.Outcome
	}
	require.Equal(t, map[string]model.Outcome{
		"a": model.OutcomePassed,
		"b": model.OutcomePassed,
		"c": model.OutcomePassed,
	}, ids)
}

func TestAdapter_BuildConfigFallsBackToProbe(t *testing.T) {
	spawner := &scriptedSpawner{}
	a := seeded(t, spawner, descriptor("a"))
	a.settings.BuildConfig = ""
	a.prober = stubProber{vars.ProbeBuildType: "RelWithDebInfo"}

	require.NoError(t, a.Run(context.Background(), nil, RunHooks{}))
	require.Len(t, spawner.specs, 1)
	args := spawner.specs[0].Args
	require.Contains(t, args, "--build-config")
	for i, arg := range args {
		if arg == "--build-config" {
			require.Equal(t, "RelWithDebInfo", args[i+1])
		}
	}
}

func TestAdapter_BuildDirFallsBackToProbe(t *testing.T) {
	probed := t.TempDir()
	spawner := &scriptedSpawner{}
	a := seeded(t, spawner, descriptor("a"))
	a.settings.BuildDir = ""
	a.prober = stubProber{vars.ProbeBuildDirectory: probed}

	require.NoError(t, a.Run(context.Background(), nil, RunHooks{}))
	require.Len(t, spawner.specs, 1)
	require.Equal(t, probed, spawner.specs[0].Dir)
}

func TestAdapter_RunOptionsRejectMissingBuildDir(t *testing.T) {
	a := seeded(t, &scriptedSpawner{}, descriptor("a"))
	a.settings.BuildDir = a.settings.BuildDir + "/gone"

	err := a.Run(context.Background(), nil, RunHooks{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
	require.Equal(t, StateIdle, a.State(), "failed runs still settle back to idle")
}

func TestAdapter_ResultOrderIndependentTiming(t *testing.T) {
	// Regression guard for the state machine returning to idle even when
	// the stream closes before any event.
	spawner := &scriptedSpawner{}
	a := seeded(t, spawner, descriptor("a"))

	start := time.Now()
	var results []model.TestResult
	err := a.Run(context.Background(), nil, RunHooks{
		OnResult: func(r model.TestResult) { results = append(results, r) },
	})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, results, 1)
	require.Equal(t, model.OutcomeErrored, results[0].Outcome)
	require.Equal(t, StateIdle, a.State())
}
