package vars

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Well-known probe names exposed by the cooperating CMake tooling.
const (
	ProbeBuildType        = "cmake.buildType"
	ProbeBuildDirectory   = "cmake.buildDirectory"
	ProbeCTestParallelism = "ctest.parallelJobs"
)

// ExecProber answers probe names by running configured command lines and
// returning their trimmed stdout. Availability is dynamic: a name with no
// configured command, or whose command fails, is reported unavailable.
type ExecProber struct {
	logger zerolog.Logger
	// Dir is the working directory probe commands run in
	Dir string
	// Commands maps probe names to argv
	Commands map[string][]string
}

// NewExecProber returns a prober running the given probe commands in dir.
func NewExecProber(logger zerolog.Logger, dir string, commands map[string][]string) *ExecProber {
	return &ExecProber{logger: logger, Dir: dir, Commands: commands}
}

// Probe runs the command configured for name. Every probe stands on its own:
// a failing probe never affects any other.
func (p *ExecProber) Probe(ctx context.Context, name string) (string, bool) {
	argv, ok := p.Commands[name]
	if !ok || len(argv) == 0 {
		return "", false
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = p.Dir
	output, err := cmd.Output()
	if err != nil {
		p.logger.Debug().Err(err).Str("probe", name).Msg("Probe command failed")
		return "", false
	}

	return strings.TrimSpace(string(output)), true
}
