package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	collections map[string]string
	added       map[string]string // id -> document
	addErr      error
	queryResult *vectordb.QueryResult
	queryErr    error
	connectErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		collections: make(map[string]string),
		added:       make(map[string]string),
	}
}

func (f *fakeEngine) GetOrCreateCollection(ctx context.Context, name string) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	id := "col-" + name
	f.collections[name] = id
	return id, nil
}

func (f *fakeEngine) Add(ctx context.Context, collectionID string, ids []string, documents []string, metadatas []map[string]any) error {
	if f.addErr != nil {
		return f.addErr
	}
	for i, id := range ids {
		f.added[id] = documents[i]
	}
	return nil
}

func (f *fakeEngine) Query(ctx context.Context, collectionID, queryText string, nResults int, where map[string]any) (*vectordb.QueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryResult != nil {
		return f.queryResult, nil
	}
	return &vectordb.QueryResult{}, nil
}

func TestNewStore_UnreachableEngineNeverFails(t *testing.T) {
	engine := newFakeEngine()
	engine.connectErr = fmt.Errorf("connection refused")

	store := NewStore(context.Background(), engine, 1)

	assert.False(t, store.Available())
	assert.False(t, store.EmbedMessage(context.Background(), 1, "hello", nil))
	assert.Empty(t, store.SearchSimilar(context.Background(), "hello", 3))
}

func TestEmbedMessage_UsesMessageIDKey(t *testing.T) {
	engine := newFakeEngine()
	store := NewStore(context.Background(), engine, 1)
	require.True(t, store.Available())

	ok := store.EmbedMessage(context.Background(), 42, "I like Go", map[string]any{"role": "user"})

	assert.True(t, ok)
	assert.Equal(t, "I like Go", engine.added["msg_42"])
}

func TestEmbedMessage_FailureReturnsFalse(t *testing.T) {
	engine := newFakeEngine()
	store := NewStore(context.Background(), engine, 1)
	engine.addErr = fmt.Errorf("engine down")

	assert.False(t, store.EmbedMessage(context.Background(), 1, "hello", nil))
}

func TestSearchSimilar_FormatsResults(t *testing.T) {
	engine := newFakeEngine()
	engine.queryResult = &vectordb.QueryResult{
		Documents: []string{"closest", "further"},
		Distances: []float64{0.1, 0.5},
		Metadatas: []map[string]any{{"role": "user"}, nil},
	}
	store := NewStore(context.Background(), engine, 1)

	similar := store.SearchSimilar(context.Background(), "query", 2)

	require.Len(t, similar, 2)
	assert.Equal(t, "closest", similar[0].Content)
	assert.Equal(t, 0.1, similar[0].Score)
	assert.Equal(t, "user", similar[0].Metadata["role"])
	assert.Equal(t, 0.5, similar[1].Score)
	assert.NotNil(t, similar[1].Metadata)
}

func TestSearchSimilar_QueryFailureReturnsEmpty(t *testing.T) {
	engine := newFakeEngine()
	store := NewStore(context.Background(), engine, 1)
	engine.queryErr = fmt.Errorf("engine down")

	assert.Empty(t, store.SearchSimilar(context.Background(), "query", 3))
}

func TestNamespaceIsPerUser(t *testing.T) {
	engine := newFakeEngine()
	NewStore(context.Background(), engine, 1)
	NewStore(context.Background(), engine, 2)

	assert.Contains(t, engine.collections, "user_1_messages")
	assert.Contains(t, engine.collections, "user_2_messages")
}
