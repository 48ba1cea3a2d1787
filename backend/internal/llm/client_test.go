package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
)

func sseBackend(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func collectChunks(stream <-chan Chunk) []Chunk {
	var chunks []Chunk
	for c := range stream {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestStreamChat_DeltasThenUsage(t *testing.T) {
	backend := sseBackend(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
	})
	defer backend.Close()

	client := NewClient(backend.URL, "", "test-model")
	stream, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "", 0.7)
	require.NoError(t, err)

	chunks := collectChunks(stream)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].Content)
	assert.Equal(t, "lo", chunks[1].Content)

	terminal := chunks[2]
	require.NotNil(t, terminal.Usage)
	assert.Equal(t, 5, terminal.Usage.PromptTokens)
	assert.Equal(t, 2, terminal.Usage.CompletionTokens)
}

func TestStreamChat_EmptyUsageWhenBackendOmitsIt(t *testing.T) {
	backend := sseBackend(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"ok"}}]}`,
	})
	defer backend.Close()

	client := NewClient(backend.URL, "", "test-model")
	stream, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "", 0.7)
	require.NoError(t, err)

	chunks := collectChunks(stream)
	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[1].Usage)
	assert.Equal(t, 0, chunks[1].Usage.TotalTokens)
}

func TestStreamChat_BackendDownIsConnectivityError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer backend.Close()

	client := NewClient(backend.URL, "", "test-model")
	_, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "", 0.7)

	require.Error(t, err)
	assert.True(t, gerrors.IsErrorType(err, gerrors.ErrorTypeConnectivity))
}

func TestActiveModelSwitching(t *testing.T) {
	client := NewClient("http://localhost:5000", "", "first")

	assert.Equal(t, "first", client.ActiveModel())
	client.SetModel("second")
	assert.Equal(t, "second", client.ActiveModel())
	client.SetModel("")
	assert.Equal(t, "second", client.ActiveModel())
}

func TestListModels(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"model-a","object":"model"},{"id":"model-b","object":"model"}]}`)
	}))
	defer backend.Close()

	client := NewClient(backend.URL, "", "model-a")
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"model-a", "model-b"}, models)
}

func TestListModels_BackendDown(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", "m")

	_, err := client.ListModels(context.Background())

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connectivity"))
}
