// Package manifest loads the CTest JSON test manifest by invoking the runner
// in its show-only mode and parsing the captured stdout.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/ctestx/ctestx/model"
)

// showOnlyFlag selects the structured manifest output mode. It exists since
// CMake 3.14; older ctest binaries print usage text instead of JSON.
const showOnlyFlag = "--show-only=json-v1"

// LoadOptions are the resolved inputs of one manifest load.
type LoadOptions struct {
	// CTestPath is the runner executable
	CTestPath string
	// Dir is the build directory the runner is invoked in
	Dir string
	// BuildConfig is the optional build-configuration label
	BuildConfig string
	// ExtraArgs are passed through verbatim after the built-in flags
	ExtraArgs []string
}

// Load invokes the runner in manifest mode and returns the parsed test list.
// The runner's exit code is deliberately ignored: the show-only mode's output
// is documented as independent of overall exit status, so the load succeeds
// whenever stdout parses as a manifest.
func Load(ctx context.Context, logger zerolog.Logger, opts LoadOptions) ([]model.TestDescriptor, error) {
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("build directory %s does not exist", opts.Dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build directory %s is not a directory", opts.Dir)
	}

	args := []string{showOnlyFlag}
	if opts.BuildConfig != "" {
		args = append(args, "--build-config", opts.BuildConfig)
	}
	args = append(args, opts.ExtraArgs...)

	logger.Debug().
		Str("dir", opts.Dir).
		Str("command", shellescape.QuoteCommand(append([]string{opts.CTestPath}, args...))).
		Msg("Loading test manifest")

	cmd := exec.CommandContext(ctx, opts.CTestPath, args...)
	cmd.Dir = opts.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", opts.CTestPath, err)
		}
		// Non-zero exit is fine as long as the manifest parsed
		logger.Debug().
			Int("exit_code", exitErr.ExitCode()).
			Msg("ctest exited non-zero during manifest load")
	}

	tests, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	logger.Debug().Int("tests", len(tests)).Msg("Manifest loaded")
	return tests, nil
}

// Parse decodes a show-only manifest document into its test list.
func Parse(data []byte) ([]model.TestDescriptor, error) {
	var doc struct {
		Tests []model.TestDescriptor `json:"tests"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ctest did not produce a JSON test manifest; "+
			"CMake 3.14 or newer is required for %s: %w", showOnlyFlag, err)
	}
	return doc.Tests, nil
}
