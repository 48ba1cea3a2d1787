// Package memory stores message embeddings per user and recalls similar past
// messages. Every operation degrades to a no-op or an empty result when the
// vector engine is unreachable; nothing here may abort a turn.
package memory

import (
	"context"
	"fmt"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/vectordb"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"go.uber.org/zap"
)

// Engine is the slice of the vector engine the memory store needs
type Engine interface {
	GetOrCreateCollection(ctx context.Context, name string) (string, error)
	Add(ctx context.Context, collectionID string, ids []string, documents []string, metadatas []map[string]any) error
	Query(ctx context.Context, collectionID, queryText string, nResults int, where map[string]any) (*vectordb.QueryResult, error)
}

// SimilarMessage is one recall hit. Score is the raw distance: lower is closer.
type SimilarMessage struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Store is a per-user message memory. The constructor never fails: if the
// engine is unreachable the store records that it is unavailable and all
// operations return empty results.
type Store struct {
	userID       int64
	engine       Engine
	collectionID string
	available    bool
	logger       *zap.Logger
}

// NewStore connects a user's message namespace on the vector engine
func NewStore(ctx context.Context, engine Engine, userID int64) *Store {
	s := &Store{
		userID: userID,
		engine: engine,
		logger: logger.Get(),
	}

	collectionID, err := engine.GetOrCreateCollection(ctx, fmt.Sprintf("user_%d_messages", userID))
	if err != nil {
		s.logger.Warn("Vector engine unavailable, message memory disabled",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return s
	}

	s.collectionID = collectionID
	s.available = true
	return s
}

// Available reports whether the backing namespace could be reached
func (s *Store) Available() bool {
	return s.available
}

// EmbedMessage upserts one message under the id msg_<messageID>. Returns
// false when the write was not performed, never an error.
func (s *Store) EmbedMessage(ctx context.Context, messageID int64, content string, metadata map[string]any) bool {
	if !s.available {
		return false
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	err := s.engine.Add(ctx, s.collectionID,
		[]string{fmt.Sprintf("msg_%d", messageID)},
		[]string{content},
		[]map[string]any{metadata},
	)
	if err != nil {
		s.logger.Error("Failed to embed message",
			zap.Int64("user_id", s.userID),
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// SearchSimilar returns up to limit past messages closest to the query,
// ordered by ascending distance. Unavailable or failing engines yield an
// empty slice, never an error.
func (s *Store) SearchSimilar(ctx context.Context, query string, limit int) []SimilarMessage {
	if !s.available {
		return nil
	}

	result, err := s.engine.Query(ctx, s.collectionID, query, limit, nil)
	if err != nil {
		s.logger.Error("Failed to search similar messages",
			zap.Int64("user_id", s.userID),
			zap.Error(err),
		)
		return nil
	}

	similar := make([]SimilarMessage, 0, len(result.Documents))
	for i, doc := range result.Documents {
		hit := SimilarMessage{Content: doc, Metadata: map[string]any{}}
		if i < len(result.Distances) {
			hit.Score = result.Distances[i]
		}
		if i < len(result.Metadatas) && result.Metadatas[i] != nil {
			hit.Metadata = result.Metadatas[i]
		}
		similar = append(similar, hit)
	}
	return similar
}
