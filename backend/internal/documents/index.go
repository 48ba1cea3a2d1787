// Package documents manages the knowledge vault: uploaded files are parsed,
// chunked, and embedded into a per-user vector namespace, then recalled as
// citation-bearing RAG context at chat time.
package documents

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/vectordb"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/metrics"
	"go.uber.org/zap"
)

// Engine is the slice of the vector engine the document index needs
type Engine interface {
	GetOrCreateCollection(ctx context.Context, name string) (string, error)
	Add(ctx context.Context, collectionID string, ids []string, documents []string, metadatas []map[string]any) error
	Query(ctx context.Context, collectionID, queryText string, nResults int, where map[string]any) (*vectordb.QueryResult, error)
	Delete(ctx context.Context, collectionID string, ids []string) error
}

// unassignedCollection marks chunks of documents that belong to no collection
const unassignedCollection = int64(-1)

// SearchResult is one chunk hit from a document search
type SearchResult struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkText  string  `json:"chunk_text"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// Index chunks and embeds documents and answers retrieval queries
type Index struct {
	engine       Engine
	store        *store.Store
	chunkSize    int
	chunkOverlap int

	mu          sync.Mutex
	namespaces  map[int64]string // userID -> engine collection id
	unavailable map[int64]bool

	metrics *metrics.Recorder
	logger  *zap.Logger
}

// SetMetrics attaches a recorder; indexing counters stay silent without one
func (ix *Index) SetMetrics(rec *metrics.Recorder) {
	ix.metrics = rec
}

// NewIndex creates a document index over the given engine and store
func NewIndex(engine Engine, st *store.Store, chunkSize, chunkOverlap int) *Index {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Index{
		engine:       engine,
		store:        st,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		namespaces:   make(map[int64]string),
		unavailable:  make(map[int64]bool),
		logger:       logger.Get(),
	}
}

// namespaceFor resolves the user's document collection on the engine,
// caching the id. Returns "" when the engine is unreachable; callers degrade.
func (ix *Index) namespaceFor(ctx context.Context, userID int64) string {
	ix.mu.Lock()
	if id, ok := ix.namespaces[userID]; ok {
		ix.mu.Unlock()
		return id
	}
	ix.mu.Unlock()

	id, err := ix.engine.GetOrCreateCollection(ctx, fmt.Sprintf("user_%d_documents", userID))
	if err != nil {
		ix.logger.Warn("Vector engine unavailable for documents",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return ""
	}

	ix.mu.Lock()
	ix.namespaces[userID] = id
	ix.mu.Unlock()
	return id
}

// chunkID derives the deterministic vector id for one chunk of a document
func chunkID(documentID int64, index int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, index)
}

// Upload registers, parses, chunks, and indexes a document. A bad collection
// reference fails before anything is written; parse and indexing failures are
// recorded on the document row (status failed) rather than returned.
func (ix *Index) Upload(ctx context.Context, userID int64, collectionID *int64, filename, contentType string, content []byte) (*store.Document, error) {
	if collectionID != nil {
		if _, err := ix.store.GetCollection(ctx, *collectionID, userID); err != nil {
			return nil, err
		}
	}

	doc, err := ix.store.CreateDocument(ctx, userID, collectionID, filename, contentType, int64(len(content)))
	if err != nil {
		return nil, err
	}

	text, err := ExtractText(content, contentType)
	if err != nil {
		return ix.failDocument(ctx, doc, 0, err)
	}
	if strings.TrimSpace(text) == "" {
		return ix.failDocument(ctx, doc, 0, fmt.Errorf("no text could be extracted"))
	}

	chunks := ChunkText(text, ix.chunkSize, ix.chunkOverlap)

	if namespace := ix.namespaceFor(ctx, userID); namespace != "" && len(chunks) > 0 {
		ids := make([]string, len(chunks))
		metadatas := make([]map[string]any, len(chunks))
		colID := unassignedCollection
		if collectionID != nil {
			colID = *collectionID
		}
		for i := range chunks {
			ids[i] = chunkID(doc.ID, i)
			metadatas[i] = map[string]any{
				"document_id":   doc.ID,
				"chunk_index":   i,
				"filename":      filename,
				"collection_id": colID,
			}
		}
		if err := ix.engine.Add(ctx, namespace, ids, chunks, metadatas); err != nil {
			return ix.failDocument(ctx, doc, len(chunks), err)
		}
	}

	if err := ix.store.MarkDocumentReady(ctx, doc.ID, len(chunks)); err != nil {
		return nil, err
	}
	doc.Status = store.DocumentStatusReady
	doc.ChunkCount = len(chunks)
	ix.metrics.ObserveIndexedDocument(len(chunks))

	ix.logger.Info("Indexed document",
		zap.Int64("user_id", userID),
		zap.Int64("document_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
	)
	return doc, nil
}

func (ix *Index) failDocument(ctx context.Context, doc *store.Document, chunkCount int, cause error) (*store.Document, error) {
	ix.logger.Error("Failed to process document",
		zap.Int64("document_id", doc.ID),
		zap.Error(cause),
	)
	if err := ix.store.MarkDocumentFailed(ctx, doc.ID, chunkCount, cause.Error()); err != nil {
		return nil, err
	}
	doc.Status = store.DocumentStatusFailed
	doc.ErrorMessage = cause.Error()
	doc.ChunkCount = chunkCount
	return doc, nil
}

// Search runs a similarity query over the user's document chunks, optionally
// restricted to the given collections. Engine failures yield empty results.
func (ix *Index) Search(ctx context.Context, userID int64, query string, collectionIDs []int64, topK int) []SearchResult {
	namespace := ix.namespaceFor(ctx, userID)
	if namespace == "" {
		return nil
	}

	var where map[string]any
	if len(collectionIDs) > 0 {
		where = map[string]any{"collection_id": map[string]any{"$in": collectionIDs}}
	}

	result, err := ix.engine.Query(ctx, namespace, query, topK, where)
	if err != nil {
		ix.logger.Error("Document search failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	hits := make([]SearchResult, 0, len(result.Documents))
	for i, text := range result.Documents {
		var meta map[string]any
		if i < len(result.Metadatas) {
			meta = result.Metadatas[i]
		}
		distance := 0.0
		if i < len(result.Distances) {
			distance = result.Distances[i]
		}
		hits = append(hits, SearchResult{
			DocumentID: metaInt64(meta, "document_id"),
			Filename:   metaString(meta, "filename", "Unknown"),
			ChunkText:  text,
			ChunkIndex: int(metaInt64(meta, "chunk_index")),
			Similarity: 1.0 / (1.0 + distance),
		})
	}
	return hits
}

// BuildRAGContext retrieves chunks relevant to the query within the given
// scope and formats them as a citation-bearing context block. Collection
// scope entries filter engine-side; document entries are post-filtered, so
// the search over-fetches 2×topK to compensate. Empty results yield "".
func (ix *Index) BuildRAGContext(ctx context.Context, userID int64, query string, scope []store.ScopeEntry, topK int) string {
	var collectionIDs []int64
	documentIDs := make(map[int64]struct{})

	for _, entry := range scope {
		switch entry.Type {
		case "collection":
			collectionIDs = append(collectionIDs, entry.ID)
		case "document":
			documentIDs[entry.ID] = struct{}{}
		}
	}

	results := ix.Search(ctx, userID, query, collectionIDs, topK*2)

	if len(documentIDs) > 0 {
		filtered := results[:0]
		for _, r := range results {
			if _, ok := documentIDs[r.DocumentID]; ok {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > topK {
		results = results[:topK]
	}
	if len(results) == 0 {
		return ""
	}

	parts := []string{"Relevant document context:"}
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("- %s... [Source: %s, chunk %d]", truncateRunes(r.ChunkText, 500), r.Filename, r.ChunkIndex+1))
	}
	return strings.Join(parts, "\n")
}

// truncateRunes cuts s to at most max characters, never splitting a rune
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Delete removes a document and its chunks. Chunk ids are reconstructed from
// the stored chunk count; if indexing partially failed the count can
// under-represent what was written and orphaned vectors may remain.
func (ix *Index) Delete(ctx context.Context, userID, documentID int64) error {
	doc, err := ix.store.GetDocument(ctx, documentID, userID)
	if err != nil {
		return err
	}

	ix.deleteChunks(ctx, userID, doc)
	return ix.store.DeleteDocument(ctx, documentID, userID)
}

// DeleteCollection removes a collection, its documents, and their chunks
func (ix *Index) DeleteCollection(ctx context.Context, userID, collectionID int64) error {
	docs, err := ix.store.ListDocuments(ctx, userID, &collectionID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		ix.deleteChunks(ctx, userID, doc)
	}
	return ix.store.DeleteCollection(ctx, collectionID, userID)
}

func (ix *Index) deleteChunks(ctx context.Context, userID int64, doc *store.Document) {
	if doc.ChunkCount == 0 {
		return
	}
	namespace := ix.namespaceFor(ctx, userID)
	if namespace == "" {
		return
	}

	ids := make([]string, doc.ChunkCount)
	for i := 0; i < doc.ChunkCount; i++ {
		ids[i] = chunkID(doc.ID, i)
	}
	if err := ix.engine.Delete(ctx, namespace, ids); err != nil {
		ix.logger.Warn("Failed to delete document chunks from vector engine",
			zap.Int64("document_id", doc.ID),
			zap.Error(err),
		)
	}
}

func metaInt64(meta map[string]any, key string) int64 {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func metaString(meta map[string]any, key, fallback string) string {
	if meta != nil {
		if v, ok := meta[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}
