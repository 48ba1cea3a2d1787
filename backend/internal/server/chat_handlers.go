package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
)

func (s *Server) handleCreateConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	conv, err := s.store.CreateConversation(c.Request.Context(), userID, req.Title)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleListConversations(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	convs, err := s.store.ListConversations(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) handleGetConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	conv, err := s.store.GetConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteConversation(c.Request.Context(), conversationID, userID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleSetConversationPersona(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		PersonaID *int64 `json:"persona_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.PersonaID != nil {
		if _, err := s.store.GetPersona(c.Request.Context(), *req.PersonaID, userID); err != nil {
			s.writeError(c, err)
			return
		}
	}
	if err := s.store.SetConversationPersona(c.Request.Context(), conversationID, userID, req.PersonaID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleSetConversationScope(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Scope []store.ScopeEntry `json:"scope"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, entry := range req.Scope {
		if entry.Type != "document" && entry.Type != "collection" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scope entries must be of type document or collection"})
			return
		}
	}

	if err := s.store.SetConversationScope(c.Request.Context(), conversationID, userID, req.Scope); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	if _, err := s.store.GetConversation(c.Request.Context(), conversationID, userID); err != nil {
		s.writeError(c, err)
		return
	}
	messages, err := s.store.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// handleSendMessage runs a chat turn and streams its fragments as SSE events.
// Validation failures surface as plain JSON errors before the stream starts;
// after that, problems arrive as an inline error event.
func (s *Server) handleSendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
		Model   string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := s.turns.RunTurn(c.Request.Context(), conversationID, userID, req.Content, req.Model)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		fragment, open := <-stream
		if !open {
			return false
		}
		c.SSEvent(string(fragment.Type), fragment)
		return true
	})
}
