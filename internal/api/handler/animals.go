package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/service"
)

// AnimalHandler serves read-only animal endpoints.
type AnimalHandler struct {
	animals *service.AnimalService
}

// NewAnimalHandler creates a new animal handler.
func NewAnimalHandler(animals *service.AnimalService) *AnimalHandler {
	return &AnimalHandler{animals: animals}
}

// List handles GET /api/animals?status=&limit=.
func (h *AnimalHandler) List(c *gin.Context) {
	var status *domain.Status
	if raw := c.Query("status"); raw != "" {
		s := domain.Status(raw)
		status = &s
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	animals, err := h.animals.List(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err, msgListFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"animals": animals,
		"total":   len(animals),
	})
}

// Get handles GET /api/animals/:id.
func (h *AnimalHandler) Get(c *gin.Context) {
	animal, err := h.animals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, msgLookupFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{"animal": animal})
}
