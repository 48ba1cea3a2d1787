package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", conv.Title)
	assert.Equal(t, int64(1), conv.UserID)

	listed, err := s.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Other users never see it
	other, err := s.ListConversations(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, other)
	_, err = s.GetConversation(ctx, conv.ID, 2)
	assert.Error(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID, 1))
	_, err = s.GetConversation(ctx, conv.ID, 1)
	assert.Error(t, err)
}

func TestMessagesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, 1, "chat")
	require.NoError(t, err)

	first, err := s.AddMessage(ctx, conv.ID, "user", "hello")
	require.NoError(t, err)
	second, err := s.AddMessage(ctx, conv.ID, "assistant", "hi there")
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	messages, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestConversationScopeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, 1, "scoped")
	require.NoError(t, err)
	assert.Empty(t, conv.DocumentScope)

	scope := []ScopeEntry{
		{Type: "collection", ID: 3},
		{Type: "document", ID: 7},
	}
	require.NoError(t, s.SetConversationScope(ctx, conv.ID, 1, scope))

	reloaded, err := s.GetConversation(ctx, conv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, scope, reloaded.DocumentScope)

	require.NoError(t, s.SetConversationScope(ctx, conv.ID, 1, nil))
	reloaded, err = s.GetConversation(ctx, conv.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, reloaded.DocumentScope)
}

func TestPersonaCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePersona(ctx, 1, "Tutor", "You are a patient tutor.", 0.5)
	require.NoError(t, err)

	fetched, err := s.GetPersona(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "You are a patient tutor.", fetched.SystemPrompt)
	assert.Equal(t, 0.5, fetched.Temperature)

	require.NoError(t, s.UpdatePersona(ctx, p.ID, 1, "Tutor", "Be brief.", 0.2))
	fetched, err = s.GetPersona(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", fetched.SystemPrompt)

	_, err = s.GetPersona(ctx, p.ID, 99)
	assert.Error(t, err)

	require.NoError(t, s.DeletePersona(ctx, p.ID, 1))
	_, err = s.GetPersona(ctx, p.ID, 1)
	assert.Error(t, err)
}

func TestConversationPersonaAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePersona(ctx, 1, "Pirate", "Talk like a pirate.", 0.9)
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, 1, "arr")
	require.NoError(t, err)

	require.NoError(t, s.SetConversationPersona(ctx, conv.ID, 1, &p.ID))
	reloaded, err := s.GetConversation(ctx, conv.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PersonaID)
	assert.Equal(t, p.ID, *reloaded.PersonaID)
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	col, err := s.CreateCollection(ctx, 1, "papers", "research papers")
	require.NoError(t, err)

	doc, err := s.CreateDocument(ctx, 1, &col.ID, "notes.txt", "txt", 128)
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusProcessing, doc.Status)

	require.NoError(t, s.MarkDocumentReady(ctx, doc.ID, 3))
	fetched, err := s.GetDocument(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusReady, fetched.Status)
	assert.Equal(t, 3, fetched.ChunkCount)

	inCollection, err := s.ListDocuments(ctx, 1, &col.ID)
	require.NoError(t, err)
	assert.Len(t, inCollection, 1)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID, 1))
	_, err = s.GetDocument(ctx, doc.ID, 1)
	assert.Error(t, err)
}

func TestMarkDocumentFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, 1, nil, "bad.bin", "bin", 10)
	require.NoError(t, err)

	require.NoError(t, s.MarkDocumentFailed(ctx, doc.ID, 0, "unsupported content type"))
	fetched, err := s.GetDocument(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusFailed, fetched.Status)
	assert.Equal(t, "unsupported content type", fetched.ErrorMessage)
}
