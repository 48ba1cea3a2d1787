package store

import "time"

// Conversation is one chat thread owned by a user
type Conversation struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"user_id"`
	Title         string       `json:"title"`
	PersonaID     *int64       `json:"persona_id,omitempty"`
	DocumentScope []ScopeEntry `json:"document_scope,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ScopeEntry restricts a conversation's RAG retrieval to a document or a
// whole collection
type ScopeEntry struct {
	Type string `json:"type"` // "document" or "collection"
	ID   int64  `json:"id"`
}

// Message is one user or assistant utterance in a conversation
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Persona is a reusable system prompt plus sampling settings
type Persona struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	Temperature  float64   `json:"temperature"`
	CreatedAt    time.Time `json:"created_at"`
}

// Collection groups uploaded documents
type Collection struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is an uploaded file's record; the chunked text itself lives in the
// vector engine. ChunkCount is authoritative for reconstructing chunk ids on
// deletion.
type Document struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	CollectionID *int64    `json:"collection_id,omitempty"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	FileSize     int64     `json:"file_size"`
	Status       string    `json:"status"` // processing, ready, failed
	ErrorMessage string    `json:"error_message,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document statuses
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)
