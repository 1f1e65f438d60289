package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/timmy/petmatch/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindValidation:      http.StatusBadRequest,
		apperr.KindNotFound:        http.StatusNotFound,
		apperr.KindUpstreamTimeout: http.StatusGatewayTimeout,
		apperr.KindUpstreamFailure: http.StatusBadGateway,
		apperr.KindPersistence:     http.StatusInternalServerError,
		apperr.KindUnknown:         http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}

func testContext(acceptLanguage string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if acceptLanguage != "" {
		c.Request.Header.Set("Accept-Language", acceptLanguage)
	}
	return c
}

func TestLocale(t *testing.T) {
	tests := map[string]language.Tag{
		"":                    language.English,
		"pt-BR":               language.BrazilianPortuguese,
		"pt":                  language.BrazilianPortuguese,
		"fr-FR, pt-BR;q=0.5":  language.BrazilianPortuguese,
		"de":                  language.English,
		"en-US,en;q=0.9":      language.English,
		"this is not a tag!!": language.English,
	}
	for header, want := range tests {
		assert.Equal(t, want, locale(testContext(header)), header)
	}
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, msgImageRequired, messageKey(apperr.Validation("image", "x"), msgSearchFailed))
	assert.Equal(t, msgStatus, messageKey(apperr.Validation("status", "x"), ""))
	assert.Equal(t, msgRegisterFailed, messageKey(apperr.Persistence("animals.create", errors.New("x")), msgRegisterFailed))
	assert.Equal(t, msgPersistence, messageKey(apperr.Persistence("animals.create", errors.New("x")), ""))
	assert.Equal(t, msgTimeout, messageKey(apperr.Timeout("embedding.embed", errors.New("x")), msgSearchFailed))
	assert.Equal(t, msgSearchFailed, messageKey(errors.New("boom"), msgSearchFailed))
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "Falha na busca", translate(testContext("pt-BR"), msgSearchFailed))
	assert.Equal(t, "Search failed", translate(testContext("en"), msgSearchFailed))
}
