package model

// TreeNode is a node of the hierarchical suite/test tree shown by the
// test-explorer UI. The two implementations, SuiteNode and TestNode, form a
// closed set.
type TreeNode interface {
	NodeID() string
	NodeLabel() string
}

// SuiteNode is a named grouping node. Suites are purely organizational;
// running a suite means running all of its leaf tests.
type SuiteNode struct {
	ID       string
	Label    string
	Tooltip  string
	Children []TreeNode
}

func (s *SuiteNode) NodeID() string    { return s.ID }
func (s *SuiteNode) NodeLabel() string { return s.Label }

// TestNode is a leaf test. Its ID is always the full descriptor name, so it
// stays addressable against the manifest regardless of display grouping.
type TestNode struct {
	ID          string
	Label       string
	Description string
	// Source location, when the configured source properties are present
	File string
	Line int
}

func (t *TestNode) NodeID() string    { return t.ID }
func (t *TestNode) NodeLabel() string { return t.Label }

// Tests returns all leaf tests under the suite in tree order.
func (s *SuiteNode) Tests() []*TestNode {
	var tests []*TestNode
	for _, child := range s.Children {
		switch node := child.(type) {
		case *SuiteNode:
			tests = append(tests, node.Tests()...)
		case *TestNode:
			tests = append(tests, node)
		}
	}
	return tests
}
