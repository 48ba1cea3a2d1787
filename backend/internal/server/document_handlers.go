package server

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/documents"
)

// maxUploadBytes caps document uploads at 20 MiB
const maxUploadBytes = 20 << 20

func (s *Server) handleUploadDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	var collectionID *int64
	if raw := c.PostForm("collection_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection_id"})
			return
		}
		collectionID = &id
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(c, err)
		return
	}

	contentType := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileHeader.Filename), "."))
	doc, err := s.docs.Upload(c.Request.Context(), userID, collectionID, fileHeader.Filename, contentType, content)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var collectionID *int64
	if raw := c.Query("collection_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection_id"})
			return
		}
		collectionID = &id
	}

	docs, err := s.store.ListDocuments(c.Request.Context(), userID, collectionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	documentID, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.docs.Delete(c.Request.Context(), userID, documentID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleSearchDocuments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Query         string  `json:"query" binding:"required"`
		CollectionIDs []int64 `json:"collection_ids"`
		TopK          int     `json:"top_k"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	results := s.docs.Search(c.Request.Context(), userID, req.Query, req.CollectionIDs, req.TopK)
	if results == nil {
		results = []documents.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleCreateCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	col, err := s.store.CreateCollection(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

func (s *Server) handleListCollections(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	cols, err := s.store.ListCollections(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": cols})
}

func (s *Server) handleUpdateCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	collectionID, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.UpdateCollection(c.Request.Context(), collectionID, userID, req.Name, req.Description); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleDeleteCollection(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	collectionID, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.docs.DeleteCollection(c.Request.Context(), userID, collectionID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
