// Package store is the relational layer: conversations, messages, personas,
// collections, and document records, all scoped by user id.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
)

// Store wraps the SQLite database
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies
// the schema
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenInMemory opens a private in-memory database, used by tests
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id        INTEGER NOT NULL,
		title          TEXT NOT NULL DEFAULT 'New Conversation',
		persona_id     INTEGER,
		document_scope TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at ASC);

	CREATE TABLE IF NOT EXISTS personas (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		name          TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		temperature   REAL NOT NULL DEFAULT 0.7,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_personas_user ON personas(user_id);

	CREATE TABLE IF NOT EXISTS collections (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_collections_user ON collections(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS documents (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       INTEGER NOT NULL,
		collection_id INTEGER REFERENCES collections(id) ON DELETE CASCADE,
		filename      TEXT NOT NULL,
		content_type  TEXT NOT NULL,
		file_size     INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'processing',
		error_message TEXT NOT NULL DEFAULT '',
		chunk_count   INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, value)
	return t
}

// ── Conversations ────────────────────────────────────────────────────────────

// CreateConversation creates a new conversation for a user
func (s *Store) CreateConversation(ctx context.Context, userID int64, title string) (*Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, title, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id, userID)
}

// GetConversation fetches a conversation scoped to its owner
func (s *Store) GetConversation(ctx context.Context, conversationID, userID int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, persona_id, document_scope, created_at, updated_at
		 FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	)
	return scanConversation(row)
}

// ListConversations lists a user's conversations, most recently updated first
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, persona_id, document_scope, created_at, updated_at
		 FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes a conversation and its messages
func (s *Store) DeleteConversation(ctx context.Context, conversationID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewConversationNotFound(conversationID)
	}
	// Messages cascade via foreign key; delete explicitly in case pragmas are off
	_, _ = s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	return nil
}

// SetConversationPersona assigns (or clears, with nil) the conversation's persona
func (s *Store) SetConversationPersona(ctx context.Context, conversationID, userID int64, personaID *int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET persona_id = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		personaID, now(), conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("set conversation persona: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewConversationNotFound(conversationID)
	}
	return nil
}

// SetConversationScope replaces the conversation's document scope. An empty
// scope clears it.
func (s *Store) SetConversationScope(ctx context.Context, conversationID, userID int64, scope []ScopeEntry) error {
	var encoded any
	if len(scope) > 0 {
		data, err := json.Marshal(scope)
		if err != nil {
			return err
		}
		encoded = string(data)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET document_scope = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		encoded, now(), conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("set conversation scope: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewConversationNotFound(conversationID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var personaID sql.NullInt64
	var scopeJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.UserID, &c.Title, &personaID, &scopeJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewConversationNotFound(c.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if personaID.Valid {
		c.PersonaID = &personaID.Int64
	}
	if scopeJSON.Valid && scopeJSON.String != "" {
		_ = json.Unmarshal([]byte(scopeJSON.String), &c.DocumentScope)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ── Messages ─────────────────────────────────────────────────────────────────

// AddMessage appends a message and bumps the conversation's updated_at
func (s *Store) AddMessage(ctx context.Context, conversationID int64, role, content string) (*Message, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, role, content, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	_, _ = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, conversationID)

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      parseTime(ts),
	}, nil
}

// ListMessages returns a conversation's messages in chronological order
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// ── Personas ─────────────────────────────────────────────────────────────────

// CreatePersona creates a persona for a user
func (s *Store) CreatePersona(ctx context.Context, userID int64, name, systemPrompt string, temperature float64) (*Persona, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (user_id, name, system_prompt, temperature, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, name, systemPrompt, temperature, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("create persona: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Persona{ID: id, UserID: userID, Name: name, SystemPrompt: systemPrompt, Temperature: temperature, CreatedAt: parseTime(ts)}, nil
}

// GetPersona fetches a persona scoped to its owner
func (s *Store) GetPersona(ctx context.Context, personaID, userID int64) (*Persona, error) {
	var p Persona
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, system_prompt, temperature, created_at
		 FROM personas WHERE id = ? AND user_id = ?`,
		personaID, userID,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.SystemPrompt, &p.Temperature, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewPersonaNotFound(personaID)
	}
	if err != nil {
		return nil, fmt.Errorf("get persona: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// ListPersonas lists a user's personas
func (s *Store) ListPersonas(ctx context.Context, userID int64) ([]*Persona, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, system_prompt, temperature, created_at
		 FROM personas WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	personas := []*Persona{}
	for rows.Next() {
		var p Persona
		var createdAt string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.SystemPrompt, &p.Temperature, &createdAt); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		personas = append(personas, &p)
	}
	return personas, rows.Err()
}

// UpdatePersona updates a persona's prompt settings
func (s *Store) UpdatePersona(ctx context.Context, personaID, userID int64, name, systemPrompt string, temperature float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE personas SET name = ?, system_prompt = ?, temperature = ? WHERE id = ? AND user_id = ?`,
		name, systemPrompt, temperature, personaID, userID,
	)
	if err != nil {
		return fmt.Errorf("update persona: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewPersonaNotFound(personaID)
	}
	return nil
}

// DeletePersona removes a persona
func (s *Store) DeletePersona(ctx context.Context, personaID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM personas WHERE id = ? AND user_id = ?`, personaID, userID)
	if err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewPersonaNotFound(personaID)
	}
	return nil
}

// ── Collections ──────────────────────────────────────────────────────────────

// CreateCollection creates a document collection
func (s *Store) CreateCollection(ctx context.Context, userID int64, name, description string) (*Collection, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (user_id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		userID, name, description, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Collection{ID: id, UserID: userID, Name: name, Description: description, CreatedAt: parseTime(ts)}, nil
}

// GetCollection fetches a collection scoped to its owner
func (s *Store) GetCollection(ctx context.Context, collectionID, userID int64) (*Collection, error) {
	var c Collection
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, created_at
		 FROM collections WHERE id = ? AND user_id = ?`,
		collectionID, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewCollectionNotFound(collectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// ListCollections lists a user's collections, newest first
func (s *Store) ListCollections(ctx context.Context, userID int64) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, created_at
		 FROM collections WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	collections := []*Collection{}
	for rows.Next() {
		var c Collection
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		collections = append(collections, &c)
	}
	return collections, rows.Err()
}

// UpdateCollection renames a collection
func (s *Store) UpdateCollection(ctx context.Context, collectionID, userID int64, name, description string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE collections SET name = ?, description = ? WHERE id = ? AND user_id = ?`,
		name, description, collectionID, userID,
	)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewCollectionNotFound(collectionID)
	}
	return nil
}

// DeleteCollection removes a collection row. Documents cascade; vector
// cleanup is the document index's responsibility.
func (s *Store) DeleteCollection(ctx context.Context, collectionID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM collections WHERE id = ? AND user_id = ?`, collectionID, userID)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewCollectionNotFound(collectionID)
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection_id = ?`, collectionID)
	return nil
}

// ── Documents ────────────────────────────────────────────────────────────────

// CreateDocument inserts a document record in processing state
func (s *Store) CreateDocument(ctx context.Context, userID int64, collectionID *int64, filename, contentType string, fileSize int64) (*Document, error) {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, collection_id, filename, content_type, file_size, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, collectionID, filename, contentType, fileSize, DocumentStatusProcessing, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Document{
		ID: id, UserID: userID, CollectionID: collectionID,
		Filename: filename, ContentType: contentType, FileSize: fileSize,
		Status: DocumentStatusProcessing, CreatedAt: parseTime(ts),
	}, nil
}

// GetDocument fetches a document scoped to its owner
func (s *Store) GetDocument(ctx context.Context, documentID, userID int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, collection_id, filename, content_type, file_size, status, error_message, chunk_count, created_at
		 FROM documents WHERE id = ? AND user_id = ?`,
		documentID, userID,
	)
	return scanDocument(row, documentID)
}

// ListDocuments lists a user's documents, optionally filtered by collection
func (s *Store) ListDocuments(ctx context.Context, userID int64, collectionID *int64) ([]*Document, error) {
	query := `SELECT id, user_id, collection_id, filename, content_type, file_size, status, error_message, chunk_count, created_at
	          FROM documents WHERE user_id = ?`
	args := []any{userID}
	if collectionID != nil {
		query += ` AND collection_id = ?`
		args = append(args, *collectionID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows, 0)
		if err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

// MarkDocumentReady records a successful indexing pass and its chunk count
func (s *Store) MarkDocumentReady(ctx context.Context, documentID int64, chunkCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, error_message = '' WHERE id = ?`,
		DocumentStatusReady, chunkCount, documentID,
	)
	return err
}

// MarkDocumentFailed records a failed indexing pass
func (s *Store) MarkDocumentFailed(ctx context.Context, documentID int64, chunkCount int, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, error_message = ? WHERE id = ?`,
		DocumentStatusFailed, chunkCount, message, documentID,
	)
	return err
}

// DeleteDocument removes a document record
func (s *Store) DeleteDocument(ctx context.Context, documentID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND user_id = ?`, documentID, userID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NewDocumentNotFound(documentID)
	}
	return nil
}

func scanDocument(row rowScanner, documentID int64) (*Document, error) {
	var d Document
	var collectionID sql.NullInt64
	var createdAt string
	err := row.Scan(&d.ID, &d.UserID, &collectionID, &d.Filename, &d.ContentType,
		&d.FileSize, &d.Status, &d.ErrorMessage, &d.ChunkCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewDocumentNotFound(documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if collectionID.Valid {
		d.CollectionID = &collectionID.Int64
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}
