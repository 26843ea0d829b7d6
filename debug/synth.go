// Package debug synthesizes debugger launch configurations from test
// metadata merged over a base configuration.
package debug

import (
	"sort"

	"github.com/ctestx/ctestx/model"
)

// LaunchConfig is the payload handed to the debugger-launch subsystem. It
// stays a plain object by contract: unknown base-configuration fields pass
// through untouched.
type LaunchConfig map[string]any

// DefaultBase is the fallback base configuration when the user names none.
func DefaultBase() LaunchConfig {
	return LaunchConfig{
		"name":            "CTest",
		"type":            "cppdbg",
		"request":         "launch",
		"stopAtEntry":     false,
		"externalConsole": false,
	}
}

// Synthesize merges one test's launch descriptor into the base
// configuration. Test-specific values take precedence over extraEnv, which
// takes precedence over whatever the base carries, field by field.
func Synthesize(desc *model.TestDescriptor, base LaunchConfig, extraEnv map[string]string) LaunchConfig {
	if base == nil {
		base = DefaultBase()
	}
	cfg := make(LaunchConfig, len(base)+4)
	for k, v := range base {
		cfg[k] = v
	}

	cfg["name"] = "ctest " + desc.Name
	if len(desc.Command) > 0 {
		cfg["program"] = desc.Command[0]
		cfg["args"] = append([]string(nil), desc.Command[1:]...)
	}
	if cwd := desc.WorkingDirectory(); cwd != "" {
		cfg["cwd"] = cwd
	}

	entries := append(sortedEntries(extraEnv), sortedEntries(desc.Environment())...)
	if len(entries) > 0 {
		family, _ := base["type"].(string)
		merger := MergerFor(family)
		cfg[merger.Key()] = merger.Merge(base[merger.Key()], entries)
	}

	return cfg
}

// sortedEntries flattens a map into deterministically ordered entries.
func sortedEntries(env map[string]string) []EnvEntry {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]EnvEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, EnvEntry{Name: k, Value: env[k]})
	}
	return entries
}
