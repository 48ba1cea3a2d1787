package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"go.uber.org/zap"
)

// Store hands out per-user knowledge graphs, loading each user's graph from
// disk on first access. Graphs are keyed by user id so namespaces never cross.
type Store struct {
	dataDir string

	mu     sync.Mutex
	graphs map[int64]*Graph

	logger *zap.Logger
}

// NewStore creates a graph registry rooted at dataDir
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
		graphs:  make(map[int64]*Graph),
		logger:  logger.Get(),
	}
}

// GraphPath returns the JSON file backing a user's graph
func (s *Store) GraphPath(userID int64) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("user_%d_graph.json", userID))
}

// ForUser returns the user's graph, loading it from disk the first time.
// A missing file yields an empty graph with no error; an unreadable or
// malformed file is logged and also yields an empty graph.
func (s *Store) ForUser(userID int64) *Graph {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.graphs[userID]; ok {
		return g
	}

	path := s.GraphPath(userID)
	g := newGraph(userID, path)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.logger.Info("Creating new knowledge graph", zap.Int64("user_id", userID))
	case err != nil:
		s.logger.Warn("Failed to read knowledge graph, starting empty",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	default:
		if err := g.loadFrom(data); err != nil {
			s.logger.Warn("Knowledge graph file corrupt, starting empty",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			g = newGraph(userID, path)
		} else {
			s.logger.Info("Loaded knowledge graph",
				zap.Int64("user_id", userID),
				zap.Int("nodes", g.NodeCount()),
				zap.Int("edges", g.EdgeCount()),
			)
		}
	}

	s.graphs[userID] = g
	return g
}

// Evict drops a user's cached graph so the next access reloads from disk.
// Used by tests and by operators after repairing a graph file by hand.
func (s *Store) Evict(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, userID)
}
