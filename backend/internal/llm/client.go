// Package llm wraps the OpenAI-compatible generation backend behind a
// streaming client and a model-selection service.
package llm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	gerrors "github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
)

// Message is one turn of chat context sent to the backend
type Message struct {
	Role    string
	Content string
}

// Chat message roles
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Usage reports token accounting for a completed generation
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Chunk is one element of a generation stream. Exactly one of the fields is
// meaningful: Content for a text delta, Usage on the terminal chunk, Err when
// the stream failed mid-response.
type Chunk struct {
	Content string
	Usage   *Usage
	Err     error
}

// Client talks to an OpenAI-compatible completion endpoint
type Client struct {
	client  *openai.Client
	baseURL string

	mu    sync.RWMutex // protects model for concurrent access
	model string

	logger *zap.Logger
}

// NewClient creates a client against the given base URL. The backend may not
// require authentication; a placeholder key keeps the SDK happy.
func NewClient(baseURL, apiKey, modelID string) *Client {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &Client{
		client:  openai.NewClientWithConfig(config),
		baseURL: baseURL,
		model:   modelID,
		logger:  logger.Get(),
	}
}

// ActiveModel returns the model currently used for generation
func (c *Client) ActiveModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetModel switches the active model
func (c *Client) SetModel(model string) {
	if model == "" {
		return
	}
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	c.logger.Debug("Active model updated", zap.String("model", model))
}

// ListModels returns the model ids the backend advertises
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, gerrors.NewGenerationBackendUnavailable(c.baseURL, err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// StreamChat starts a streaming completion. If the backend cannot be reached
// the error is returned synchronously and no channel is produced; once
// streaming has begun, failures arrive as a Chunk with Err set and the channel
// closes. A successful stream ends with a terminal usage chunk.
func (c *Client) StreamChat(ctx context.Context, messages []Message, model string, temperature float32) (<-chan Chunk, error) {
	if model == "" {
		model = c.ActiveModel()
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAI(messages),
		Temperature: temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		c.logger.Error("Failed to open generation stream",
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, gerrors.NewGenerationBackendUnavailable(c.baseURL, err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		var usage *Usage
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if usage == nil {
					usage = &Usage{}
				}
				select {
				case out <- Chunk{Usage: usage}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				c.logger.Error("Generation stream interrupted",
					zap.String("model", model),
					zap.Error(err),
				)
				select {
				case out <- Chunk{Err: gerrors.NewStreamInterrupted(model, err)}:
				case <-ctx.Done():
				}
				return
			}

			if resp.Usage != nil {
				usage = &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- Chunk{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return converted
}
