package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ctxhub/ctxhub/internal/middleware"
)

type RouterDeps struct {
	Packages  *PackageHandler
	Versions  *VersionHandler
	Ingest    *IngestHandler
	Sync      *SyncHandler
	Search    *SearchHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/packages", deps.Packages.Create)
	authGroup.GET("/packages", deps.Packages.List)
	authGroup.GET("/packages/:id", deps.Packages.Get)
	authGroup.PUT("/packages/:id", deps.Packages.Update)
	authGroup.GET("/packages/slug/:slug", deps.Packages.GetBySlug)

	authGroup.POST("/packages/:id/versions", deps.Versions.Create)
	authGroup.GET("/packages/:id/versions", deps.Versions.List)
	authGroup.GET("/versions/:id", deps.Versions.Get)
	authGroup.DELETE("/versions/:id", deps.Versions.Delete)
	authGroup.POST("/versions/:id/lock", deps.Versions.Lock)
	authGroup.POST("/versions/:id/publish", deps.Versions.Publish)
	authGroup.POST("/versions/:id/recalculate", deps.Versions.RecalculateStats)
	authGroup.GET("/versions/:id/files", deps.Versions.ListFiles)
	authGroup.GET("/versions/:id/file", deps.Versions.GetFile)
	authGroup.GET("/versions/:id/chunks", deps.Versions.ListFileChunks)

	authGroup.POST("/versions/:id/ingest", deps.Ingest.Ingest)

	authGroup.POST("/connections", deps.Sync.CreateConnection)
	authGroup.GET("/connections", deps.Sync.ListConnections)
	authGroup.GET("/connections/:id", deps.Sync.GetConnection)
	authGroup.DELETE("/connections/:id", deps.Sync.DeleteConnection)
	authGroup.POST("/connections/:id/sync", deps.Sync.Trigger)
	authGroup.GET("/connections/:id/jobs", deps.Sync.ListJobs)
	authGroup.GET("/sync-jobs/:id", deps.Sync.GetJob)

	authGroup.POST("/search", deps.Search.Search)
	authGroup.GET("/search", deps.Search.SearchGet)

	// unauthenticated; the shared secret plus a per-connection rate limit
	// keep pushes from hammering the sync path
	api.POST("/webhooks/connections/:id", middleware.RateLimit(5*time.Second), deps.Sync.Webhook)
}
