package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/logger"
)

// Message keys are the English texts; other locales are registered in init.
const (
	msgInvalidRequest   = "Invalid request"
	msgImageRequired    = "A valid image is required (JPG, PNG or WEBP, up to 10 MB)"
	msgCoordinates      = "Latitude and longitude are required and must be valid coordinates"
	msgStatus           = `Status must be "lost" or "found"`
	msgRadius           = "maxDistanceKm must be a positive number"
	msgLimit            = "topK must be a positive integer"
	msgNotFound         = "Animal not found"
	msgTimeout          = "An external service took too long to respond"
	msgUpstream         = "An external service failed"
	msgPersistence      = "Database operation failed"
	msgInternal         = "Internal server error"
	msgRegistered       = "Animal registered successfully"
	msgRegisterFailed   = "Failed to register animal"
	msgSearchFailed     = "Search failed"
	msgListFailed       = "Failed to list animals"
	msgLookupFailed     = "Failed to fetch animal"
	msgBodyTooLarge     = "Request body is too large"
	msgInvalidMultipart = "Request must be multipart/form-data"
)

var supportedLocales = []language.Tag{language.English, language.BrazilianPortuguese}

var localeMatcher = language.NewMatcher(supportedLocales)

func init() {
	pt := language.BrazilianPortuguese
	for key, text := range map[string]string{
		msgInvalidRequest:   "Requisição inválida",
		msgImageRequired:    "Imagem válida é obrigatória (JPG, PNG ou WEBP, até 10 MB)",
		msgCoordinates:      "Latitude e longitude são obrigatórias e devem ser coordenadas válidas",
		msgStatus:           `Status deve ser "lost" ou "found"`,
		msgRadius:           "maxDistanceKm deve ser um número positivo",
		msgLimit:            "topK deve ser um inteiro positivo",
		msgNotFound:         "Animal não encontrado",
		msgTimeout:          "Um serviço externo demorou demais para responder",
		msgUpstream:         "Falha em um serviço externo",
		msgPersistence:      "Falha na operação do banco de dados",
		msgInternal:         "Erro interno do servidor",
		msgRegistered:       "Animal registrado com sucesso",
		msgRegisterFailed:   "Falha ao registrar animal",
		msgSearchFailed:     "Falha na busca",
		msgListFailed:       "Falha ao listar animais",
		msgLookupFailed:     "Falha ao buscar animal",
		msgBodyTooLarge:     "Corpo da requisição muito grande",
		msgInvalidMultipart: "A requisição deve ser multipart/form-data",
	} {
		_ = message.SetString(pt, key, text)
	}
}

// locale picks the response language from Accept-Language. English is the fallback.
func locale(c *gin.Context) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := localeMatcher.Match(tags...)
	return supportedLocales[idx]
}

func translate(c *gin.Context, key string) string {
	return message.NewPrinter(locale(c)).Sprintf(key)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func validationKey(field string) string {
	switch field {
	case "image", "image_url":
		return msgImageRequired
	case "latitude", "longitude", "lat", "lon":
		return msgCoordinates
	case "status":
		return msgStatus
	case "maxDistanceKm":
		return msgRadius
	case "topK", "limit":
		return msgLimit
	case "body":
		return msgBodyTooLarge
	case "form":
		return msgInvalidMultipart
	default:
		return msgInvalidRequest
	}
}

// messageKey picks the user-facing message for err. fallback is used for
// server-side kinds when the operation has its own wording.
func messageKey(err error, fallback string) string {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		if fallback != "" {
			return fallback
		}
		return msgInternal
	}
	switch appErr.Kind {
	case apperr.KindValidation:
		return validationKey(appErr.Field)
	case apperr.KindNotFound:
		return msgNotFound
	case apperr.KindUpstreamTimeout:
		return msgTimeout
	case apperr.KindUpstreamFailure:
		return msgUpstream
	case apperr.KindPersistence:
		if fallback != "" {
			return fallback
		}
		return msgPersistence
	default:
		if fallback != "" {
			return fallback
		}
		return msgInternal
	}
}

// respondError writes {"error", "details", "kind"} with the status of err's kind.
func respondError(c *gin.Context, err error, fallback string) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).WithError(err).
			WithField(logger.FieldErrorKind, kind.String()).
			Error("Request failed")
	}
	c.JSON(status, gin.H{
		"error":   translate(c, messageKey(err, fallback)),
		"details": apperr.DetailOf(err),
		"kind":    kind.String(),
	})
}
