package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/fdsender/internal/api/handlers"
	"github.com/your-org/fdsender/internal/api/ws"
	"github.com/your-org/fdsender/internal/auth"
	"github.com/your-org/fdsender/internal/storage"
)

type RouterConfig struct {
	// APIKey guards /v1 and is also the token expected in ingest payloads.
	APIKey string
	Index  storage.ObjectIndex
	Blobs  storage.BlobStore
	Queue  handlers.TaskQueue
	Hub    *ws.Hub
	// Checks are reported by /readyz.
	Checks map[string]handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	objectH := handlers.NewObjectHandler(cfg.Index, cfg.Blobs, cfg.Queue, cfg.APIKey)

	// Ingest carries its token in the body.
	r.POST("/v1/ingest", objectH.Ingest)

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	v1.POST("/objects/:base/search", objectH.Search)
	v1.GET("/objects/:base/:id", objectH.Get)
	v1.GET("/objects/:base/:id/image", objectH.Image)

	cameraH := handlers.NewCameraHandler(cfg.Index)
	v1.GET("/cameras", cameraH.List)
	v1.POST("/cameras", cameraH.Create)

	return r
}
