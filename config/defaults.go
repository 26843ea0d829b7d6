package config

const (
	// DefaultCTestPath is the runner executable looked up on PATH.
	DefaultCTestPath = "ctest"
	// DefaultBuildDir is the build directory relative to the workspace.
	DefaultBuildDir = "${workspaceFolder}"
	// DefaultConfigFile is the settings file looked for in the workspace.
	DefaultConfigFile = ".ctestx.yaml"
	// DefaultErrorPattern matches gcc/clang style diagnostics in test
	// output.
	DefaultErrorPattern = `^(?P<file>[^<].*?):(?P<line>\d+):\d*:?\s+(?:fatal\s+)?(?P<severity>warning|error):\s+(?P<message>.*)$`
)
