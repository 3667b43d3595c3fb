package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vocalq/outbound/internal/dialer"
)

type startOutboundRequest struct {
	PhoneNumbers []string `json:"phone_numbers"`
}

// startOutbound enqueues the submitted numbers and starts the dial worker if
// it is not already draining the queue.
func (s *Server) startOutbound(c *gin.Context) {
	var req startOutboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorDetail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PhoneNumbers) == 0 {
		errorDetail(c, http.StatusBadRequest, "No phone numbers provided")
		return
	}

	items, err := s.cfg.Dialer.Enqueue(c.Request.Context(), req.PhoneNumbers)
	if err != nil {
		errorDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	// The worker must outlive this request.
	if err := s.cfg.Dialer.Start(context.WithoutCancel(c.Request.Context())); err != nil && !errors.Is(err, dialer.ErrAlreadyRunning) {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Added %d numbers to queue and started processing.", len(items)),
		"items":   items,
	})
}

func (s *Server) outboundStatus(c *gin.Context) {
	status, err := s.cfg.Dialer.Status(c.Request.Context())
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}
