package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type personaRequest struct {
	Name         string  `json:"name" binding:"required"`
	SystemPrompt string  `json:"system_prompt" binding:"required"`
	Temperature  float64 `json:"temperature"`
}

func (p *personaRequest) normalize() {
	if p.Temperature <= 0 {
		p.Temperature = 0.7
	}
}

func (s *Server) handleCreatePersona(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req personaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.normalize()

	persona, err := s.store.CreatePersona(c.Request.Context(), userID, req.Name, req.SystemPrompt, req.Temperature)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, persona)
}

func (s *Server) handleListPersonas(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	personas, err := s.store.ListPersonas(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"personas": personas})
}

func (s *Server) handleUpdatePersona(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	personaID, ok := pathID(c)
	if !ok {
		return
	}

	var req personaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.normalize()

	if err := s.store.UpdatePersona(c.Request.Context(), personaID, userID, req.Name, req.SystemPrompt, req.Temperature); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleDeletePersona(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	personaID, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.store.DeletePersona(c.Request.Context(), personaID, userID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleListModels(c *gin.Context) {
	models, err := s.models.ListModels(c.Request.Context())
	if err != nil {
		// The backend being down should not 500 the model list; report what
		// we know locally
		models = nil
	}
	c.JSON(http.StatusOK, gin.H{
		"active": s.models.ActiveModel(),
		"models": models,
	})
}

func (s *Server) handleSetActiveModel(c *gin.Context) {
	var req struct {
		Model string `json:"model" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.models.SetModel(req.Model)
	c.JSON(http.StatusOK, gin.H{"active": s.models.ActiveModel()})
}
