package sessions

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LifecycleHandlers provides HTTP handlers for the session lifecycle
type LifecycleHandlers struct {
	lifecycle LifecycleManager
	logger    *zap.Logger
}

// NewLifecycleHandlers creates new lifecycle handlers
func NewLifecycleHandlers(lifecycle LifecycleManager, logger *zap.Logger) *LifecycleHandlers {
	return &LifecycleHandlers{
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// RegisterRoutes registers all lifecycle routes
func (h *LifecycleHandlers) RegisterRoutes(router *gin.RouterGroup) {
	help := router.Group("/help")
	{
		help.POST("/session", h.CreateSession)
		help.POST("/queue", h.Enqueue)
		help.DELETE("/queue", h.Dequeue)
		help.DELETE("/queue/:sessionId", h.EndSession)
		help.POST("/setToNotConnected/:sessionId", h.MarkNotConnected)
	}
}

// CreateSession handles a customer requesting service
func (h *LifecycleHandlers) CreateSession(c *gin.Context) {
	userAgent := requestParam(c, "userAgent")
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	req := &CreateSessionRequest{
		CampaignID:    requestParam(c, "campaignId"),
		BannerID:      requestParam(c, "bannerId"),
		UserAgent:     userAgent,
		UserIPAddress: c.ClientIP(),
	}

	details, err := h.lifecycle.CreateSession(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Failed to create help session", zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": "Could not create the help session."})
		return
	}

	c.JSON(http.StatusOK, details)
}

// Enqueue handles a customer entering the service queue
func (h *LifecycleHandlers) Enqueue(c *gin.Context) {
	sessionID := requestParam(c, "session_id")

	err := h.lifecycle.Enqueue(c.Request.Context(), sessionID)
	if err != nil {
		if IsClientError(err) {
			c.String(http.StatusBadRequest, "An invalid session_id was given.")
			return
		}
		h.logger.Error("Failed to enqueue customer", zap.String("session_id", sessionID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not enqueue the user.")
		return
	}

	c.Status(http.StatusNoContent)
}

// Dequeue hands the oldest waiting customer to a representative. An empty
// queue responds 204 No Content.
func (h *LifecycleHandlers) Dequeue(c *gin.Context) {
	representativeName := requestParam(c, "representativeName")

	details, err := h.lifecycle.DequeueForRepresentative(c.Request.Context(), representativeName)
	if err != nil {
		h.logger.Error("Failed to dequeue customer", zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not dequeue a user.")
		return
	}
	if details == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, details)
}

// EndSession handles termination by either the customer or the representative
func (h *LifecycleHandlers) EndSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.lifecycle.EndSession(c.Request.Context(), sessionID); err != nil {
		if IsClientError(err) {
			c.String(http.StatusNotFound, "An invalid sessionId was given.")
			return
		}
		h.logger.Error("Failed to end session", zap.String("session_id", sessionID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not end the session.")
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkNotConnected handles the representative reporting a failed handoff
func (h *LifecycleHandlers) MarkNotConnected(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.lifecycle.MarkNotConnected(c.Request.Context(), sessionID); err != nil {
		if IsClientError(err) {
			c.String(http.StatusNotFound, "An invalid sessionId was given.")
			return
		}
		h.logger.Error("Failed to mark session not connected", zap.String("session_id", sessionID), zap.Error(err))
		c.String(http.StatusInternalServerError, "Could not update the session.")
		return
	}

	c.Status(http.StatusNoContent)
}

// requestParam reads a parameter from the form body or, failing that, the
// query string, matching what the customer widget sends.
func requestParam(c *gin.Context, name string) string {
	if value := c.PostForm(name); value != "" {
		return value
	}
	return c.Query(name)
}

// statusForError maps the error taxonomy onto HTTP status codes: not-found
// and invalid-input surface as client errors, provider and storage failures
// as server errors.
func statusForError(err error) int {
	if IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
