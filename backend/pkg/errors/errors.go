package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConnectivity represents unreachable external services (vector
	// engine, generation backend). These degrade features rather than abort.
	ErrorTypeConnectivity ErrorType = "connectivity"
	// ErrorTypeValidation represents bad references supplied by the caller
	// (unknown conversation, collection, document, persona)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeCorruptState represents unreadable persisted state
	ErrorTypeCorruptState ErrorType = "corrupt_state"
	// ErrorTypePersistence represents failed writes of state owned by this
	// service. Never swallowed at the point of failure.
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeGeneration represents LLM generation errors
	ErrorTypeGeneration ErrorType = "generation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Connectivity Errors

// ErrVectorEngineUnavailable is returned when the vector engine cannot be reached
type ErrVectorEngineUnavailable struct {
	*BaseError
	Host string
}

func NewVectorEngineUnavailable(host string, err error) *ErrVectorEngineUnavailable {
	return &ErrVectorEngineUnavailable{
		BaseError: NewBaseError(ErrorTypeConnectivity, fmt.Sprintf("vector engine unreachable: %s", host), err),
		Host:      host,
	}
}

// ErrGenerationBackendUnavailable is returned when the LLM backend cannot be reached
type ErrGenerationBackendUnavailable struct {
	*BaseError
	URL string
}

func NewGenerationBackendUnavailable(url string, err error) *ErrGenerationBackendUnavailable {
	return &ErrGenerationBackendUnavailable{
		BaseError: NewBaseError(ErrorTypeConnectivity, fmt.Sprintf("generation backend unreachable: %s", url), err),
		URL:       url,
	}
}

// Validation Errors

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to another user
type ErrConversationNotFound struct {
	*BaseError
	ConversationID int64
}

func NewConversationNotFound(conversationID int64) *ErrConversationNotFound {
	return &ErrConversationNotFound{
		BaseError:      NewBaseError(ErrorTypeValidation, fmt.Sprintf("conversation not found: %d", conversationID), nil),
		ConversationID: conversationID,
	}
}

// ErrCollectionNotFound is returned when a referenced collection does not exist
type ErrCollectionNotFound struct {
	*BaseError
	CollectionID int64
}

func NewCollectionNotFound(collectionID int64) *ErrCollectionNotFound {
	return &ErrCollectionNotFound{
		BaseError:    NewBaseError(ErrorTypeValidation, fmt.Sprintf("collection not found: %d", collectionID), nil),
		CollectionID: collectionID,
	}
}

// ErrDocumentNotFound is returned when a referenced document does not exist
type ErrDocumentNotFound struct {
	*BaseError
	DocumentID int64
}

func NewDocumentNotFound(documentID int64) *ErrDocumentNotFound {
	return &ErrDocumentNotFound{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("document not found: %d", documentID), nil),
		DocumentID: documentID,
	}
}

// ErrPersonaNotFound is returned when a referenced persona does not exist
type ErrPersonaNotFound struct {
	*BaseError
	PersonaID int64
}

func NewPersonaNotFound(personaID int64) *ErrPersonaNotFound {
	return &ErrPersonaNotFound{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("persona not found: %d", personaID), nil),
		PersonaID: personaID,
	}
}

// ErrUnsupportedContentType is returned for document uploads we cannot parse
type ErrUnsupportedContentType struct {
	*BaseError
	ContentType string
}

func NewUnsupportedContentType(contentType string) *ErrUnsupportedContentType {
	return &ErrUnsupportedContentType{
		BaseError:   NewBaseError(ErrorTypeValidation, fmt.Sprintf("unsupported content type: %s", contentType), nil),
		ContentType: contentType,
	}
}

// Corrupt State Errors

// ErrGraphFileCorrupt is returned when a persisted knowledge graph cannot be parsed
type ErrGraphFileCorrupt struct {
	*BaseError
	Path string
}

func NewGraphFileCorrupt(path string, err error) *ErrGraphFileCorrupt {
	return &ErrGraphFileCorrupt{
		BaseError: NewBaseError(ErrorTypeCorruptState, fmt.Sprintf("graph file corrupt: %s", path), err),
		Path:      path,
	}
}

// Persistence Errors

// ErrGraphSaveFailed is returned when writing a knowledge graph to disk fails
type ErrGraphSaveFailed struct {
	*BaseError
	UserID int64
	Path   string
}

func NewGraphSaveFailed(userID int64, path string, err error) *ErrGraphSaveFailed {
	return &ErrGraphSaveFailed{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("failed to save graph for user %d", userID), err),
		UserID:    userID,
		Path:      path,
	}
}

// Generation Errors

// ErrStreamInterrupted is returned when the generation stream fails mid-response
type ErrStreamInterrupted struct {
	*BaseError
	Model string
}

func NewStreamInterrupted(model string, err error) *ErrStreamInterrupted {
	return &ErrStreamInterrupted{
		BaseError: NewBaseError(ErrorTypeGeneration, "generation stream interrupted", err),
		Model:     model,
	}
}

// Helper functions

// ErrType returns the error category. Promoted through embedding so every
// typed error in this package reports its category.
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if typed, ok := err.(interface{ ErrType() ErrorType }); ok {
		return typed.ErrType() == errType
	}
	// Check wrapped errors
	if wrapper, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapper.Unwrap(); inner != nil {
			return IsErrorType(inner, errType)
		}
	}
	return false
}

// IsValidation reports whether the error should surface as a client error
// before any stream starts
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}
