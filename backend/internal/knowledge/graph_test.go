package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestAddFact_CreatesNodesAndEdge(t *testing.T) {
	g := newTestStore(t).ForUser(1)

	g.AddFact("Alice", "works_on", "Project Alpha", map[string]any{
		"source_type": "person",
		"target_type": "project",
		"since":       "2024",
	})

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, "person", g.NodeAttrs("Alice")["type"])
	assert.Equal(t, "project", g.NodeAttrs("Project Alpha")["type"])

	attrs := g.EdgeAttrs("Alice", "Project Alpha")
	require.NotNil(t, attrs)
	assert.Equal(t, "works_on", attrs["relationship"])
	assert.Equal(t, "2024", attrs["since"])
}

func TestAddFact_RepeatedPairOverwrites(t *testing.T) {
	g := newTestStore(t).ForUser(1)

	g.AddFact("A", "knows", "B", map[string]any{"weight": 1})
	g.AddFact("A", "dislikes", "B", map[string]any{"weight": 2})

	assert.Equal(t, 1, g.EdgeCount())
	attrs := g.EdgeAttrs("A", "B")
	assert.Equal(t, "dislikes", attrs["relationship"])
	assert.Equal(t, 2, attrs["weight"])
}

func TestGetRelated_HopLevels(t *testing.T) {
	g := newTestStore(t).ForUser(1)
	g.AddFact("A", "knows", "B", nil)
	g.AddFact("B", "knows", "C", nil)

	oneHop := g.GetRelated("A", 1)
	require.Len(t, oneHop, 1)
	assert.Equal(t, "B", oneHop[0].ConnectedEntity)
	assert.Equal(t, "knows", oneHop[0].Relationship)

	twoHop := g.GetRelated("A", 2)
	require.Len(t, twoHop, 2)
	assert.Equal(t, "B", twoHop[0].ConnectedEntity)
	assert.Equal(t, "C", twoHop[1].ConnectedEntity)
	assert.Equal(t, "B", twoHop[1].Entity)
}

func TestGetRelated_IncomingEdges(t *testing.T) {
	g := newTestStore(t).ForUser(1)
	g.AddFact("B", "mentions", "A", nil)

	related := g.GetRelated("A", 1)
	require.Len(t, related, 1)
	assert.Equal(t, "A", related[0].Entity)
	assert.Equal(t, "B", related[0].ConnectedEntity)
	assert.Equal(t, "mentions", related[0].Relationship)
}

func TestGetRelated_CycleDoesNotRevisit(t *testing.T) {
	g := newTestStore(t).ForUser(1)
	g.AddFact("A", "knows", "B", nil)
	g.AddFact("B", "knows", "A", nil)

	related := g.GetRelated("A", 3)
	assert.Len(t, related, 1)
}

func TestGetRelated_UnknownEntity(t *testing.T) {
	g := newTestStore(t).ForUser(1)
	assert.Empty(t, g.GetRelated("Nobody", 2))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	g := store.ForUser(7)
	g.AddFact("Alice", "works_on", "Gantry", map[string]any{
		"source_type": "person",
		"confidence":  "high",
	})
	g.AddFact("Gantry", "written_in", "Go", nil)
	require.NoError(t, g.Save())

	store.Evict(7)
	reloaded := store.ForUser(7)

	assert.Equal(t, g.NodeCount(), reloaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), reloaded.EdgeCount())
	assert.Equal(t, "person", reloaded.NodeAttrs("Alice")["type"])

	attrs := reloaded.EdgeAttrs("Alice", "Gantry")
	require.NotNil(t, attrs)
	assert.Equal(t, "works_on", attrs["relationship"])
	assert.Equal(t, "high", attrs["confidence"])
	assert.Equal(t, "written_in", reloaded.EdgeAttrs("Gantry", "Go")["relationship"])
}

func TestForUser_MissingFileGivesEmptyGraph(t *testing.T) {
	g := newTestStore(t).ForUser(42)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestForUser_MalformedFileGivesEmptyGraph(t *testing.T) {
	store := newTestStore(t)
	path := store.GraphPath(9)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	g := store.ForUser(9)
	assert.Equal(t, 0, g.NodeCount())
}

func TestSave_WriteFailurePropagates(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))
	g := store.ForUser(1)
	g.AddFact("A", "knows", "B", nil)

	// Occupy the data dir path with a plain file so the write cannot succeed
	require.NoError(t, os.WriteFile(filepath.Dir(store.GraphPath(1)), nil, 0o644))

	err := g.Save()
	assert.Error(t, err)
}

func TestUserIsolation(t *testing.T) {
	store := newTestStore(t)
	g1 := store.ForUser(1)
	g2 := store.ForUser(2)

	g1.AddFact("Alice", "knows", "Bob", nil)
	assert.Equal(t, 0, g2.NodeCount())
	assert.NotEqual(t, store.GraphPath(1), store.GraphPath(2))
}
