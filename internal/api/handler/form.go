package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/petmatch/internal/apperr"
)

// formImage opens the "image" part of a multipart request. A missing part
// yields a nil reader so the pipeline reports it like any other missing field.
// The returned closer is never nil.
func formImage(c *gin.Context) (io.Reader, string, func(), error) {
	noop := func() {}

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, "", noop, apperr.Validation("body", "request body exceeds the upload limit")
		case errors.Is(err, http.ErrMissingFile):
			return nil, "", noop, nil
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, multipart.ErrMessageTooLarge):
			return nil, "", noop, apperr.Validation("form", err.Error())
		default:
			return nil, "", noop, apperr.Validation("form", "invalid multipart form: "+err.Error())
		}
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", noop, apperr.Validation("image", "failed to read uploaded image")
	}
	return file, header.Filename, func() { _ = file.Close() }, nil
}
