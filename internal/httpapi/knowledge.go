package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type addDocumentRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

func (s *Server) addDocument(c *gin.Context) {
	if s.cfg.Searcher == nil {
		errorDetail(c, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}

	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		errorDetail(c, http.StatusBadRequest, "text is required")
		return
	}

	doc, err := s.cfg.Searcher.AddDocument(c.Request.Context(), req.Source, req.Text)
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) listDocuments(c *gin.Context) {
	if s.cfg.Searcher == nil {
		errorDetail(c, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}

	docs, err := s.cfg.Searcher.Documents(c.Request.Context())
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) deleteDocument(c *gin.Context) {
	if s.cfg.Searcher == nil {
		errorDetail(c, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}

	if err := s.cfg.Searcher.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
