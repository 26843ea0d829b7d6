// Package suite projects a flat descriptor list into the hierarchical
// suite/test tree consumed by the test-explorer UI.
package suite

import (
	"strconv"
	"strings"

	"github.com/ctestx/ctestx/model"
)

// Suite IDs carry a NUL-based suffix so they can never collide with a test
// ID: CTest forbids NUL bytes in test names, while every leaf keeps its full
// descriptor name as its ID.
const (
	// RootID is the reserved sentinel ID of the root suite.
	RootID = "\x00root"

	suiteIDSuffix = "\x00*"
)

// Options control tree construction.
type Options struct {
	// Delimiter splits descriptor names into suite path segments; empty
	// produces a single flat suite.
	Delimiter string
	// SourceFileProperty names the descriptor property carrying the test's
	// source file, if any.
	SourceFileProperty string
	// SourceLineProperty names the descriptor property carrying the test's
	// source line, if any.
	SourceLineProperty string
}

// Build converts descriptors into a suite tree. It is a pure function with
// no failure modes: an absent delimiter is a valid configuration, not an
// error. Manifest order is preserved within every level, and the first
// descriptor to introduce a path segment creates its suite node.
func Build(descriptors []model.TestDescriptor, opts Options) *model.SuiteNode {
	root := &model.SuiteNode{
		ID:    RootID,
		Label: "CTest",
	}

	suites := make(map[string]*model.SuiteNode)

	for i := range descriptors {
		desc := &descriptors[i]
		test := newTestNode(desc, opts)

		if opts.Delimiter == "" {
			test.Label = desc.Name
			root.Children = append(root.Children, test)
			continue
		}

		segments := strings.Split(desc.Name, opts.Delimiter)
		parent := root
		path := ""
		for _, segment := range segments[:len(segments)-1] {
			if path != "" {
				path += opts.Delimiter
			}
			path += segment

			key := path + suiteIDSuffix
			node, ok := suites[key]
			if !ok {
				node = &model.SuiteNode{
					ID:      key,
					Label:   segment,
					Tooltip: path,
				}
				suites[key] = node
				parent.Children = append(parent.Children, node)
			}
			parent = node
		}

		test.Label = segments[len(segments)-1]
		parent.Children = append(parent.Children, test)
	}

	return root
}

// newTestNode builds a leaf whose ID is the full original descriptor name,
// keeping it round-trippable to the manifest regardless of grouping.
func newTestNode(desc *model.TestDescriptor, opts Options) *model.TestNode {
	test := &model.TestNode{
		ID:          desc.Name,
		Description: desc.Config,
	}
	if opts.SourceFileProperty != "" {
		if v, ok := desc.Property(opts.SourceFileProperty); ok {
			test.File = v.String
		}
	}
	if opts.SourceLineProperty != "" {
		if v, ok := desc.Property(opts.SourceLineProperty); ok {
			if line, err := strconv.Atoi(v.String); err == nil {
				test.Line = line
			}
		}
	}
	return test
}
