package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type broadcastEmailRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BroadcastEmail sends one message to every active member. Delivery is
// best effort: the response reports how many sends went out, and failed
// recipients are only visible in the logs.
func (s *Server) BroadcastEmail(c *gin.Context) {
	var req broadcastEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		AbortWithError(c, newValidationError("subject", "invalid_subject", "subject is required"))
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		AbortWithError(c, newValidationError("body", "invalid_body", "body is required"))
		return
	}

	sent, err := s.broadcast.SendBulk(c.Request.Context(), subject, req.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"sent": sent}})
}
