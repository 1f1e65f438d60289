package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timmy/petmatch/internal/api/handler"
	"github.com/timmy/petmatch/internal/api/middleware"
	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/service"
)

// Services are the process-scoped dependencies of the router.
type Services struct {
	Ingest    *service.IngestService
	Search    *service.SearchService
	Animals   *service.AnimalService
	Embedding handler.EmbeddingHealth
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.ServerConfig, svc Services, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(svc.Embedding, svc.Animals)
	registerHandler := handler.NewRegisterHandler(svc.Ingest)
	searchHandler := handler.NewSearchHandler(svc.Search)
	animalHandler := handler.NewAnimalHandler(svc.Animals)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.Timeout(cfg.RequestTimeout))
	{
		uploads := api.Group("", middleware.MaxBody(cfg.MaxUploadBytes()))
		uploads.POST("/register", registerHandler.Register)
		uploads.POST("/search", searchHandler.Search)

		api.GET("/animals", animalHandler.List)
		api.GET("/animals/:id", animalHandler.Get)
	}

	return r
}
