// Package config holds the adapter settings surface and its YAML file
// loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the adapter configuration surface. String values may contain
// ${workspaceFolder}, ${command:...} and ${env:...} placeholders; they are
// resolved at load/run time, never at parse time.
type Settings struct {
	// CTestPath is the runner executable
	CTestPath string `yaml:"ctestPath"`
	// BuildDir is the CMake build directory tests are discovered and run in;
	// empty delegates to the cooperating tool's build-directory probe
	BuildDir string `yaml:"buildDir"`
	// BuildConfig is the build-configuration label (e.g. "Debug"); empty
	// delegates to the cooperating tool's build-type probe
	BuildConfig string `yaml:"buildConfig"`
	// DebugConfig is a JSON file with the base launch configuration used
	// for debugging
	DebugConfig string `yaml:"debugConfig"`
	// ParallelJobs bounds concurrent tests. 0 autodetects (cooperating
	// tool's setting, falling back to the host CPU count); 1 or below
	// disables parallelism.
	ParallelJobs int `yaml:"parallelJobs"`
	// IsolateTests runs every test in its own runner process instead of one
	// combined invocation, bounded by ParallelJobs
	IsolateTests bool `yaml:"isolateTests"`
	// ExtraCTestLoadArgs are appended to the manifest invocation
	ExtraCTestLoadArgs []string `yaml:"extraCtestLoadArgs"`
	// ExtraCTestRunArgs are appended to the run invocation
	ExtraCTestRunArgs []string `yaml:"extraCtestRunArgs"`
	// ExtraCTestEnvVars are added to the run environment
	ExtraCTestEnvVars map[string]string `yaml:"extraCtestEnvVars"`
	// EnvFile is an optional dotenv file contributing run environment
	EnvFile string `yaml:"envFile"`
	// SuiteDelimiter splits test names into suite levels; empty disables
	// grouping
	SuiteDelimiter string `yaml:"suiteDelimiter"`
	// TestFileVar names the test property carrying the source file
	TestFileVar string `yaml:"testFileVar"`
	// TestLineVar names the test property carrying the source line
	TestLineVar string `yaml:"testLineVar"`
	// ErrorPattern extracts source locations from failed test output. Named
	// groups: file, line, message, and optionally severity.
	ErrorPattern string `yaml:"errorPattern"`
	// Probes maps cooperating-tool probe names to command lines
	Probes map[string][]string `yaml:"probes"`
}

// Default returns the settings used when no file overrides them.
func Default() *Settings {
	return &Settings{
		CTestPath:    DefaultCTestPath,
		BuildDir:     DefaultBuildDir,
		ErrorPattern: DefaultErrorPattern,
	}
}

// Load reads settings from a YAML file, applying defaults for absent keys.
// A missing file is not an error: it yields the defaults.
func Load(path string) (*Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if settings.CTestPath == "" {
		settings.CTestPath = DefaultCTestPath
	}
	return settings, nil
}
