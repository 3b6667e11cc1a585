// Package v1 wires the HTTP API: item CRUD, semantic search, and the
// embedding maintenance endpoints.
package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/circleshare/circleshare/ai"
	"github.com/circleshare/circleshare/ai/imageproc"
	"github.com/circleshare/circleshare/ai/lifecycle"
	"github.com/circleshare/circleshare/ai/metrics"
	"github.com/circleshare/circleshare/ai/retrieval"
	"github.com/circleshare/circleshare/internal/profile"
	"github.com/circleshare/circleshare/server/auth"
	"github.com/circleshare/circleshare/store"
)

type APIV1Service struct {
	SearchService *SearchService
	ItemService   *ItemService

	Profile *profile.Profile
	Store   *store.Store
	Secret  string
}

// NewAPIV1Service assembles the API services. When no embedding provider
// is configured the item endpoints still work; search reports that
// semantic discovery is unavailable.
func NewAPIV1Service(secret string, p *profile.Profile, s *store.Store, exporter *metrics.PrometheusExporter) *APIV1Service {
	service := &APIV1Service{
		Profile: p,
		Store:   s,
		Secret:  secret,
	}

	var engine *retrieval.Engine
	var refresher *lifecycle.Refresher

	aiConfig := ai.NewConfigFromProfile(p)
	if aiConfig.Enabled {
		if err := aiConfig.Validate(); err != nil {
			slog.Warn("invalid embedding configuration, semantic search disabled", "error", err)
		} else if embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding); err != nil {
			slog.Warn("failed to initialize embedding service, semantic search disabled", "error", err)
		} else {
			engine = retrieval.NewEngine(s, embedder, exporter)
			preparer := imageproc.NewPreparer(aiConfig.Embedding.Timeout)
			refresher = lifecycle.NewRefresher(s, embedder, preparer, aiConfig.Embedding.Model, aiConfig.Embedding.MaxConcurrent)
			slog.Info("embedding service initialized",
				"provider", aiConfig.Embedding.Provider,
				"model", aiConfig.Embedding.Model,
				"dimensions", aiConfig.Embedding.Dimensions)
		}
	}

	service.SearchService = NewSearchService(s, p, engine, exporter)
	service.ItemService = NewItemService(s, p, refresher)
	return service
}

// RegisterRoutes mounts all v1 routes behind bearer-token auth.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1", auth.Middleware(s.Secret))

	g.POST("/search", s.SearchService.Search)

	g.POST("/items", s.ItemService.CreateItem)
	g.GET("/items", s.ItemService.ListItems)
	g.GET("/items/:uid", s.ItemService.GetItem)
	g.PATCH("/items/:uid", s.ItemService.UpdateItem)
	g.DELETE("/items/:uid", s.ItemService.DeleteItem)

	g.POST("/embeddings/backfill", s.ItemService.BackfillEmbeddings)
}
