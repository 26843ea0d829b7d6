// Package vars resolves ${...} placeholders in configuration values from a
// layered set of sources: the workspace folder, probe commands exposed by a
// cooperating tool, and environment variables.
package vars

import (
	"context"
	"os"
	"regexp"
	"runtime"
	"strings"
)

// Placeholder grammar. The classes are disjoint, so resolution order never
// changes the outcome.
const (
	workspaceFolderVar = "${workspaceFolder}"
	commandVarPrefix   = "${command:"
	envVarPrefix       = "${env:"
)

var (
	commandVarRe = regexp.MustCompile(`\$\{command:([^}]+)\}`)
	envVarRe     = regexp.MustCompile(`\$\{env:([^}]+)\}`)
)

// Prober answers named probe commands of a cooperating tool (build type,
// build directory, ...). Implementations report availability per name; an
// unavailable probe resolves to the empty string.
type Prober interface {
	Probe(ctx context.Context, name string) (string, bool)
}

// Resolver substitutes placeholders in configuration strings. Results are
// never cached: every call re-queries the probe commands, so values are
// always fresh at load/run time.
type Resolver struct {
	// WorkspaceFolder replaces ${workspaceFolder}
	WorkspaceFolder string
	// Prober answers ${command:...} placeholders; nil means none available
	Prober Prober
	// LookupEnv answers ${env:...} placeholders; defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// New returns a resolver rooted at the given workspace folder.
func New(workspaceFolder string, prober Prober) *Resolver {
	return &Resolver{
		WorkspaceFolder: workspaceFolder,
		Prober:          prober,
		LookupEnv:       os.LookupEnv,
	}
}

// Resolve substitutes every recognized placeholder in s. A placeholder is
// replaced repeatedly until no occurrence remains, so multiple occurrences
// of the same variable in one string all resolve. Circular definitions are
// not a concern: placeholder values are never themselves placeholders.
func (r *Resolver) Resolve(ctx context.Context, s string) string {
	s = replaceAll(s, workspaceFolderVar, r.WorkspaceFolder)

	for _, name := range uniqueMatches(commandVarRe, s) {
		value := ""
		if r.Prober != nil {
			if v, ok := r.Prober.Probe(ctx, name); ok {
				value = v
			}
		}
		s = replaceAll(s, commandVarPrefix+name+"}", value)
	}

	for _, name := range uniqueMatches(envVarRe, s) {
		lookup := name
		if runtime.GOOS == "windows" {
			// Environment variables are case-insensitive there
			lookup = strings.ToUpper(name)
		}
		value := ""
		if r.LookupEnv != nil {
			if v, ok := r.LookupEnv(lookup); ok {
				value = v
			}
		}
		s = replaceAll(s, envVarPrefix+name+"}", value)
	}

	return s
}

// ResolveSlice resolves every element of values.
func (r *Resolver) ResolveSlice(ctx context.Context, values []string) []string {
	if values == nil {
		return nil
	}
	resolved := make([]string, len(values))
	for i, v := range values {
		resolved[i] = r.Resolve(ctx, v)
	}
	return resolved
}

// ResolveMap resolves every value of m, keeping keys untouched.
func (r *Resolver) ResolveMap(ctx context.Context, m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	resolved := make(map[string]string, len(m))
	for k, v := range m {
		resolved[k] = r.Resolve(ctx, v)
	}
	return resolved
}

// replaceAll substitutes token until no occurrence remains. The loop stops
// early when the replacement value itself contains the token, which would
// otherwise never terminate.
func replaceAll(s, token, value string) string {
	if strings.Contains(value, token) {
		return strings.ReplaceAll(s, token, value)
	}
	for strings.Contains(s, token) {
		s = strings.ReplaceAll(s, token, value)
	}
	return s
}

func uniqueMatches(re *regexp.Regexp, s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
