// Package vectordb is a thin client for a Chroma-compatible vector engine
// speaking its REST API. The engine embeds documents server-side; this client
// only moves ids, texts, and metadata.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"go.uber.org/zap"
)

// QueryResult holds one query's matches, parallel slices ordered by
// ascending distance
type QueryResult struct {
	Documents []string
	Distances []float64
	Metadatas []map[string]any
}

// Client talks to a single vector engine instance
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a vector engine client for the given host URL
func NewClient(host string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(host, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Get(),
	}
}

// Heartbeat probes engine availability
func (c *Client) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewVectorEngineUnavailable(c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewVectorEngineUnavailable(c.baseURL, fmt.Errorf("heartbeat status %d", resp.StatusCode))
	}
	return nil
}

// GetOrCreateCollection resolves a collection name to its engine-side id,
// creating the collection if it does not exist
func (c *Client) GetOrCreateCollection(ctx context.Context, name string) (string, error) {
	body := map[string]any{"name": name, "get_or_create": true}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/api/v1/collections", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.NewVectorEngineUnavailable(c.baseURL, fmt.Errorf("collection %q: empty id in response", name))
	}
	return out.ID, nil
}

// Add upserts records into a collection. The three slices must be the same
// length; the engine computes embeddings from the documents.
func (c *Client) Add(ctx context.Context, collectionID string, ids []string, documents []string, metadatas []map[string]any) error {
	body := map[string]any{
		"ids":       ids,
		"documents": documents,
		"metadatas": metadatas,
	}
	return c.post(ctx, fmt.Sprintf("/api/v1/collections/%s/add", collectionID), body, nil)
}

// Query runs a similarity search. where is an optional engine-side metadata
// filter (e.g. {"collection_id": {"$in": [1, 2]}}).
func (c *Client) Query(ctx context.Context, collectionID, queryText string, nResults int, where map[string]any) (*QueryResult, error) {
	body := map[string]any{
		"query_texts": []string{queryText},
		"n_results":   nResults,
	}
	if where != nil {
		body["where"] = where
	}

	// The engine nests results one level per query text; we always send one
	var out struct {
		Documents [][]string         `json:"documents"`
		Distances [][]float64        `json:"distances"`
		Metadatas [][]map[string]any `json:"metadatas"`
	}
	if err := c.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", collectionID), body, &out); err != nil {
		return nil, err
	}

	result := &QueryResult{}
	if len(out.Documents) > 0 {
		result.Documents = out.Documents[0]
	}
	if len(out.Distances) > 0 {
		result.Distances = out.Distances[0]
	}
	if len(out.Metadatas) > 0 {
		result.Metadatas = out.Metadatas[0]
	}
	return result, nil
}

// Delete removes records by id
func (c *Client) Delete(ctx context.Context, collectionID string, ids []string) error {
	body := map[string]any{"ids": ids}
	return c.post(ctx, fmt.Sprintf("/api/v1/collections/%s/delete", collectionID), body, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewVectorEngineUnavailable(c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Vector engine request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return errors.NewVectorEngineUnavailable(c.baseURL, fmt.Errorf("%s: status %d", path, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}
