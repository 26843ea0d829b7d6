package suite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ctestx/ctestx/model"
)

func descriptors(names ...string) []model.TestDescriptor {
	descs := make([]model.TestDescriptor, len(names))
	for i, name := range names {
		descs[i] = model.TestDescriptor{Name: name, Command: []string{"/bin/" + name}}
	}
	return descs
}

func TestBuild_FlatWithoutDelimiter(t *testing.T) {
	root := Build(descriptors("a/b", "c", "d.e"), Options{})

	require.Equal(t, RootID, root.ID)
	require.Len(t, root.Children, 3)
	for i, name := range []string{"a/b", "c", "d.e"} {
		test, ok := root.Children[i].(*model.TestNode)
		require.True(t, ok)
		require.Equal(t, name, test.ID)
		require.Equal(t, name, test.Label)
	}
}

func TestBuild_DelimiterGrouping(t *testing.T) {
	root := Build(descriptors("suite1/testA", "suite1/testB", "suite2/testC"), Options{Delimiter: "/"})

	require.Len(t, root.Children, 2)

	suite1, ok := root.Children[0].(*model.SuiteNode)
	require.True(t, ok)
	require.Equal(t, "suite1", suite1.Label)
	require.Len(t, suite1.Children, 2)
	testA := suite1.Children[0].(*model.TestNode)
	require.Equal(t, "suite1/testA", testA.ID)
	require.Equal(t, "testA", testA.Label)
	testB := suite1.Children[1].(*model.TestNode)
	require.Equal(t, "suite1/testB", testB.ID)
	require.Equal(t, "testB", testB.Label)

	suite2, ok := root.Children[1].(*model.SuiteNode)
	require.True(t, ok)
	require.Equal(t, "suite2", suite2.Label)
	require.Len(t, suite2.Children, 1)
	testC := suite2.Children[0].(*model.TestNode)
	require.Equal(t, "suite2/testC", testC.ID)
	require.Equal(t, "testC", testC.Label)
}

func TestBuild_RoundTripPreservesOrder(t *testing.T) {
	names := []string{
		"alpha",
		"net/tcp/connect",
		"net/tcp/close",
		"net/udp/send",
		"zeta",
	}

	for _, delimiter := range []string{"", "/", ".", "::"} {
		root := Build(descriptors(names...), Options{Delimiter: delimiter})
		var collected []string
		for _, test := range root.Tests() {
			collected = append(collected, test.ID)
		}
		require.Equal(t, names, collected, "delimiter %q", delimiter)
	}
}

func TestBuild_SuiteIDsNeverCollideWithTestIDs(t *testing.T) {
	// Adversarial names trying to look like suite IDs
	names := []string{"a/b", "a", "a/b/c", "a*", "a/*"}
	root := Build(descriptors(names...), Options{Delimiter: "/"})

	testIDs := make(map[string]bool)
	var walk func(*model.SuiteNode)
	var suiteIDs []string
	walk = func(s *model.SuiteNode) {
		for _, child := range s.Children {
			switch node := child.(type) {
			case *model.SuiteNode:
				suiteIDs = append(suiteIDs, node.ID)
				walk(node)
			case *model.TestNode:
				require.False(t, testIDs[node.ID], "duplicate test ID %q", node.ID)
				testIDs[node.ID] = true
			}
		}
	}
	walk(root)

	for _, suiteID := range suiteIDs {
		require.False(t, testIDs[suiteID], "suite ID %q collides with a test ID", suiteID)
		require.True(t, strings.Contains(suiteID, "\x00"))
	}
	require.False(t, testIDs[RootID])
}

func TestBuild_RepeatedPrefixReusesNode(t *testing.T) {
	root := Build(descriptors("g.a", "h.x", "g.b"), Options{Delimiter: "."})

	// First descriptor to introduce a segment creates its node; later ones
	// attach under it without reordering the level.
	require.Len(t, root.Children, 2)
	g := root.Children[0].(*model.SuiteNode)
	require.Equal(t, "g", g.Label)
	require.Len(t, g.Children, 2)
	require.Equal(t, "g.a", g.Children[0].NodeID())
	require.Equal(t, "g.b", g.Children[1].NodeID())
}

func TestBuild_SourceProperties(t *testing.T) {
	descs := []model.TestDescriptor{{
		Name:    "testAdd",
		Command: []string{"/build/tests/add"},
		Properties: []model.Property{
			{Name: "SRC_FILE", Value: model.PropertyValue{String: "tests/test_add.c"}},
			{Name: "SRC_LINE", Value: model.PropertyValue{String: "42"}},
		},
	}}

	root := Build(descs, Options{
		SourceFileProperty: "SRC_FILE",
		SourceLineProperty: "SRC_LINE",
	})
	test := root.Children[0].(*model.TestNode)
	require.Equal(t, "tests/test_add.c", test.File)
	require.Equal(t, 42, test.Line)
}
