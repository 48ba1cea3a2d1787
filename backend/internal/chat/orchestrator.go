// Package chat runs a conversation turn end to end: persist the user message,
// gather long-term memory, stream the model's response, then write the turn
// back into memory.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/extract"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/knowledge"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/llm"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/memory"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/metrics"
)

// Turn stages, used for logging and instrumentation
const (
	stageRetrieving = "retrieving"
	stageGenerating = "generating"
	stagePersisting = "persisting"
)

// FragmentType discriminates stream fragments
type FragmentType string

const (
	// FragmentContent carries a piece of the assistant's response text
	FragmentContent FragmentType = "content"
	// FragmentError carries an inline generation failure; it is always the
	// last fragment of its stream
	FragmentError FragmentType = "error"
	// FragmentMetadata is the terminal fragment of a successful turn
	FragmentMetadata FragmentType = "metadata"
)

// Fragment is one element of a turn's output stream
type Fragment struct {
	Type     FragmentType  `json:"type"`
	Content  string        `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Metadata *TurnMetadata `json:"metadata,omitempty"`
}

// TurnMetadata summarizes a completed turn
type TurnMetadata struct {
	TurnID           string `json:"turn_id"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	ElapsedMS        int64  `json:"elapsed_ms"`
}

// Generator produces streamed completions
type Generator interface {
	StreamChat(ctx context.Context, messages []llm.Message, model string, temperature float32) (<-chan llm.Chunk, error)
	ActiveModel() string
}

// RAGBuilder retrieves scoped document context for a query
type RAGBuilder interface {
	BuildRAGContext(ctx context.Context, userID int64, query string, scope []store.ScopeEntry, topK int) string
}

const (
	defaultTemperature = 0.7
	recallTopK         = 3
	ragTopK            = 3
	factHops           = 1
)

// Orchestrator drives chat turns. One instance serves all users; per-user
// memory namespaces are cached after first use.
type Orchestrator struct {
	store  *store.Store
	graphs *knowledge.Store
	engine memory.Engine
	docs   RAGBuilder
	gen    Generator

	mu       sync.Mutex
	memories map[int64]*memory.Store

	metrics *metrics.Recorder
	logger  *zap.Logger
}

// NewOrchestrator wires the turn pipeline. rec may be nil.
func NewOrchestrator(st *store.Store, graphs *knowledge.Store, engine memory.Engine, docs RAGBuilder, gen Generator, rec *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		store:    st,
		graphs:   graphs,
		engine:   engine,
		docs:     docs,
		gen:      gen,
		memories: make(map[int64]*memory.Store),
		metrics:  rec,
		logger:   logger.Get(),
	}
}

// memoryFor returns the user's message memory, connecting the namespace on
// first use. Only reachable stores are cached: after an engine outage the
// next turn re-probes instead of staying memoryless until restart.
func (o *Orchestrator) memoryFor(ctx context.Context, userID int64) *memory.Store {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.memories[userID]; ok {
		return m
	}
	m := memory.NewStore(ctx, o.engine, userID)
	if m.Available() {
		o.memories[userID] = m
	}
	return m
}

// RunTurn processes one user message. Validation and the initial message
// write happen synchronously; a returned error means nothing was streamed.
// The returned channel carries content fragments as the model produces them
// and closes after a terminal metadata or error fragment.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID, userID int64, content, requestedModel string) (<-chan Fragment, error) {
	conv, err := o.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	userMsg, err := o.store.AddMessage(ctx, conversationID, llm.RoleUser, content)
	if err != nil {
		return nil, err
	}

	out := make(chan Fragment)
	go o.runTurn(ctx, conv, userMsg, requestedModel, out)
	return out, nil
}

type retrieved struct {
	similar []memory.SimilarMessage
	facts   []knowledge.Relation
	rag     string
}

func (o *Orchestrator) runTurn(ctx context.Context, conv *store.Conversation, userMsg *store.Message, requestedModel string, out chan<- Fragment) {
	defer close(out)

	turnID := uuid.NewString()
	started := time.Now()
	log := o.logger.With(
		zap.String("turn_id", turnID),
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("user_id", conv.UserID),
	)

	rec := o.retrieve(ctx, conv, userMsg.Content, log)

	messages, persona := o.compose(ctx, conv, rec, log)

	model := requestedModel
	if model == "" {
		model = o.gen.ActiveModel()
	}
	temperature := float32(defaultTemperature)
	if persona != nil {
		temperature = float32(persona.Temperature)
	}

	genStart := time.Now()
	stream, err := o.gen.StreamChat(ctx, messages, model, temperature)
	if err != nil {
		log.Error("Failed to start generation", zap.String("stage", stageGenerating), zap.Error(err))
		o.metrics.ObserveTurn(metrics.OutcomeFailed)
		out <- Fragment{Type: FragmentError, Error: "The response could not be generated. Please try again."}
		return
	}

	var buffer []byte
	var usage *llm.Usage
	for chunk := range stream {
		if chunk.Err != nil {
			log.Error("Generation stream interrupted", zap.String("stage", stageGenerating), zap.Error(chunk.Err))
			o.metrics.ObserveStage(stageGenerating, time.Since(genStart))
			o.metrics.ObserveTurn(metrics.OutcomeInterrupted)
			out <- Fragment{Type: FragmentError, Error: "The response was interrupted. Please try again."}
			return
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
			continue
		}

		buffer = append(buffer, chunk.Content...)
		select {
		case out <- Fragment{Type: FragmentContent, Content: chunk.Content}:
		case <-ctx.Done():
			// Caller went away; drop the partial response on the floor
			log.Info("Turn cancelled mid-stream", zap.Int("partial_bytes", len(buffer)))
			o.metrics.ObserveTurn(metrics.OutcomeInterrupted)
			return
		}
	}
	if ctx.Err() != nil {
		log.Info("Turn cancelled mid-stream", zap.Int("partial_bytes", len(buffer)))
		o.metrics.ObserveTurn(metrics.OutcomeInterrupted)
		return
	}
	o.metrics.ObserveStage(stageGenerating, time.Since(genStart))

	response := string(buffer)
	o.persistTurn(ctx, conv, userMsg, response, log)

	if usage == nil {
		usage = &llm.Usage{}
	}
	out <- Fragment{Type: FragmentMetadata, Metadata: &TurnMetadata{
		TurnID:           turnID,
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		ElapsedMS:        time.Since(started).Milliseconds(),
	}}
	o.metrics.ObserveTurn(metrics.OutcomeDone)
}

// retrieve gathers the three long-term memory sources concurrently. Each
// source degrades to an empty result on its own; a failure in one never
// blanks the others.
func (o *Orchestrator) retrieve(ctx context.Context, conv *store.Conversation, query string, log *zap.Logger) retrieved {
	start := time.Now()
	defer func() { o.metrics.ObserveStage(stageRetrieving, time.Since(start)) }()

	var rec retrieved
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rec.similar = o.memoryFor(gctx, conv.UserID).SearchSimilar(gctx, query, recallTopK)
		if len(rec.similar) == 0 {
			o.metrics.ObserveRecallFailure("vector")
		}
		return nil
	})

	g.Go(func() error {
		graph := o.graphs.ForUser(conv.UserID)
		for _, entity := range extract.Extract(query) {
			rec.facts = append(rec.facts, graph.GetRelated(entity.Value, factHops)...)
		}
		return nil
	})

	if len(conv.DocumentScope) > 0 {
		g.Go(func() error {
			rec.rag = o.docs.BuildRAGContext(gctx, conv.UserID, query, conv.DocumentScope, ragTopK)
			return nil
		})
	}

	g.Wait()

	log.Debug("Retrieved long-term context",
		zap.String("stage", stageRetrieving),
		zap.Int("similar_messages", len(rec.similar)),
		zap.Int("graph_facts", len(rec.facts)),
		zap.Bool("rag_context", rec.rag != ""),
	)
	return rec
}

// compose assembles the prompt: system message (persona or default, plus
// memory and document blocks), then the conversation history in order. The
// just-persisted user message arrives as the last history entry.
func (o *Orchestrator) compose(ctx context.Context, conv *store.Conversation, rec retrieved, log *zap.Logger) ([]llm.Message, *store.Persona) {
	var persona *store.Persona
	if conv.PersonaID != nil {
		p, err := o.store.GetPersona(ctx, *conv.PersonaID, conv.UserID)
		if err != nil {
			log.Warn("Assigned persona could not be loaded", zap.Int64("persona_id", *conv.PersonaID), zap.Error(err))
		} else {
			persona = p
		}
	}

	system := buildSystemPrompt(persona, o.gen.ActiveModel())
	if ltm := buildLTMContext(rec.similar, rec.facts); ltm != "" {
		system += "\n\n" + ltm
	}
	if rec.rag != "" {
		system += "\n\n" + rec.rag
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}

	history, err := o.store.ListMessages(ctx, conv.ID)
	if err != nil {
		log.Warn("Failed to load conversation history", zap.Error(err))
		return messages, persona
	}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return messages, persona
}

// persistTurn writes the completed turn back into long-term memory. Runs only
// after the response stream has fully finished. Every failure here is logged
// and swallowed; the user already has their answer.
func (o *Orchestrator) persistTurn(ctx context.Context, conv *store.Conversation, userMsg *store.Message, response string, log *zap.Logger) {
	start := time.Now()
	defer func() { o.metrics.ObserveStage(stagePersisting, time.Since(start)) }()

	assistantMsg, err := o.store.AddMessage(ctx, conv.ID, llm.RoleAssistant, response)
	if err != nil {
		log.Error("Failed to persist assistant message", zap.String("stage", stagePersisting), zap.Error(err))
	}

	mem := o.memoryFor(ctx, conv.UserID)
	mem.EmbedMessage(ctx, userMsg.ID, userMsg.Content, map[string]any{
		"conversation_id": conv.ID,
		"role":            llm.RoleUser,
	})
	if assistantMsg != nil {
		mem.EmbedMessage(ctx, assistantMsg.ID, response, map[string]any{
			"conversation_id": conv.ID,
			"role":            llm.RoleAssistant,
		})
	}

	graph := o.graphs.ForUser(conv.UserID)
	conversationNode := fmt.Sprintf("conversation_%d", conv.ID)
	for _, entity := range extract.Extract(response) {
		graph.AddFact(entity.Value, "mentioned_in", conversationNode, nil)
	}
	if err := graph.Save(); err != nil {
		log.Error("Failed to save knowledge graph", zap.String("stage", stagePersisting), zap.Error(err))
	}
}
