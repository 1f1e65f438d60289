package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/petmatch/internal/service"
)

// RegisterHandler handles animal registration.
type RegisterHandler struct {
	ingest *service.IngestService
}

// NewRegisterHandler creates a new register handler.
func NewRegisterHandler(ingest *service.IngestService) *RegisterHandler {
	return &RegisterHandler{ingest: ingest}
}

// Register handles POST /api/register.
// Form fields: image (file), latitude, longitude, status, description (optional).
func (h *RegisterHandler) Register(c *gin.Context) {
	image, filename, closeImage, err := formImage(c)
	if err != nil {
		respondError(c, err, msgRegisterFailed)
		return
	}
	defer closeImage()

	lat, err := service.ParseFloatField("latitude", c.PostForm("latitude"))
	if err != nil {
		respondError(c, err, msgRegisterFailed)
		return
	}
	lon, err := service.ParseFloatField("longitude", c.PostForm("longitude"))
	if err != nil {
		respondError(c, err, msgRegisterFailed)
		return
	}

	animal, err := h.ingest.Register(c.Request.Context(), service.RegisterInput{
		Image:       image,
		Filename:    filename,
		Latitude:    lat,
		Longitude:   lon,
		Description: c.PostForm("description"),
		Status:      c.PostForm("status"),
	})
	if err != nil {
		respondError(c, err, msgRegisterFailed)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": translate(c, msgRegistered),
		"animal":  animal,
	})
}
