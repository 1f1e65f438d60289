package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/petmatch/internal/service"
)

// SearchHandler handles image + location searches.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - search: search pipeline.
//
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search handles POST /api/search.
// Form fields: image (file), lat, lon, status (what the caller has),
// maxDistanceKm and topK (optional).
func (h *SearchHandler) Search(c *gin.Context) {
	image, filename, closeImage, err := formImage(c)
	if err != nil {
		respondError(c, err, msgSearchFailed)
		return
	}
	defer closeImage()

	in := service.SearchInput{
		Image:    image,
		Filename: filename,
		Status:   c.PostForm("status"),
	}
	if in.Latitude, err = service.ParseFloatField("lat", c.PostForm("lat")); err != nil {
		respondError(c, err, msgSearchFailed)
		return
	}
	if in.Longitude, err = service.ParseFloatField("lon", c.PostForm("lon")); err != nil {
		respondError(c, err, msgSearchFailed)
		return
	}
	if in.MaxDistanceKm, err = service.ParseFloatField("maxDistanceKm", c.PostForm("maxDistanceKm")); err != nil {
		respondError(c, err, msgSearchFailed)
		return
	}
	if in.Limit, err = service.ParseIntField("topK", c.PostForm("topK")); err != nil {
		respondError(c, err, msgSearchFailed)
		return
	}

	result, err := h.search.Search(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, msgSearchFailed)
		return
	}
	c.JSON(http.StatusOK, result)
}
