package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/petmatch/internal/embedding"
)

// EmbeddingHealth reports the embedding service status.
type EmbeddingHealth interface {
	Health(ctx context.Context) embedding.Health
}

// Pinger checks the datastore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	embedding EmbeddingHealth
	db        Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(embedding EmbeddingHealth, db Pinger) *HealthHandler {
	return &HealthHandler{embedding: embedding, db: db}
}

// Health reports the API as ok together with the embedding service and
// datastore state. Only a failing datastore makes the API unhealthy: the
// embedding service is reported but may be warming up.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	database := "ok"
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		database = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":           overall,
		"embeddingService": h.embedding.Health(ctx),
		"database":         database,
	})
}
