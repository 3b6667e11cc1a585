package v1

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/ai"
	"github.com/circleshare/circleshare/ai/metrics"
	"github.com/circleshare/circleshare/ai/retrieval"
	"github.com/circleshare/circleshare/internal/profile"
	"github.com/circleshare/circleshare/server/auth"
	"github.com/circleshare/circleshare/store"
)

// searcher is the engine surface the handler needs.
type searcher interface {
	Search(ctx context.Context, userID int32, query *retrieval.SearchQuery) ([]*store.ItemWithScore, error)
}

// SearchService handles semantic search requests.
type SearchService struct {
	Store   *store.Store
	Profile *profile.Profile

	engine   searcher
	exporter *metrics.PrometheusExporter
}

// NewSearchService creates a SearchService. engine may be nil when no
// embedding provider is configured.
func NewSearchService(s *store.Store, p *profile.Profile, engine *retrieval.Engine, exporter *metrics.PrometheusExporter) *SearchService {
	svc := &SearchService{
		Store:    s,
		Profile:  p,
		exporter: exporter,
	}
	if engine != nil {
		svc.engine = engine
	}
	return svc
}

// SearchRequest is the POST /api/v1/search payload. Circle ids arrive as
// strings on the wire and are parsed before the engine sees them.
type SearchRequest struct {
	Query     string   `json:"query"`
	ImageURL  string   `json:"imageUrl"`
	CircleIDs []string `json:"circleIds"`
	Limit     int      `json:"limit"`
	Threshold *float32 `json:"threshold"`
}

// SearchResponse is the POST /api/v1/search response body.
type SearchResponse struct {
	Results []*SearchResultView `json:"results"`
}

// SearchResultView is one ranked result after enrichment.
type SearchResultView struct {
	UID         string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Categories  []string      `json:"categories,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	ImageURL    string        `json:"imageUrl,omitempty"`
	CircleIDs   []int32       `json:"circleIds"`
	Circles     []*CircleView `json:"circles"`
	CreatedTs   int64         `json:"createdTs"`
	Score       float32       `json:"similarity"`
	IsOwner     bool          `json:"isOwner"`
	Owner       *OwnerView    `json:"owner,omitempty"`
}

// CircleView is the circle display subset joined into results.
type CircleView struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// OwnerView is the owner display subset joined into results.
type OwnerView struct {
	Username  string `json:"username"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Search handles POST /api/v1/search.
func (s *SearchService) Search(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if s.engine == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "semantic search is not configured")
	}

	request := &SearchRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	circleIDs, err := parseCircleIDs(request.CircleIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	ranked, err := s.engine.Search(ctx, userID, &retrieval.SearchQuery{
		Text:      request.Query,
		ImageRef:  request.ImageURL,
		CircleIDs: circleIDs,
		Limit:     request.Limit,
		Threshold: request.Threshold,
	})
	if err != nil {
		if retrieval.IsInvalidQuery(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if ai.IsEmbeddingError(err) {
			// Provider details stay in the logs, not the response. One
			// attempt per request; retrying is the caller's decision.
			slog.Warn("query embedding failed", "user_id", userID, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to process search query")
		}
		slog.Error("search failed", "user_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search items")
	}

	results, err := s.enrichResults(ctx, userID, ranked)
	if err != nil {
		slog.Error("failed to enrich search results", "user_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search items")
	}
	return c.JSON(http.StatusOK, &SearchResponse{Results: results})
}

// enrichResults joins fresh item rows and owner display data onto the
// ranked IDs with two batched lookups. An item or owner that vanished
// between ranking and enrichment drops out of the response instead of
// failing it.
func (s *SearchService) enrichResults(ctx context.Context, userID int32, ranked []*store.ItemWithScore) ([]*SearchResultView, error) {
	if len(ranked) == 0 {
		return []*SearchResultView{}, nil
	}

	itemIDs := make([]int32, 0, len(ranked))
	for _, r := range ranked {
		itemIDs = append(itemIDs, r.Item.ID)
	}
	items, err := s.Store.ListItems(ctx, &store.FindItem{IDs: itemIDs})
	if err != nil {
		return nil, err
	}
	itemByID := make(map[int32]*store.Item, len(items))
	ownerIDs := make([]int32, 0, len(items))
	circleIDSet := map[int32]bool{}
	for _, item := range items {
		itemByID[item.ID] = item
		ownerIDs = append(ownerIDs, item.OwnerID)
		for _, circleID := range item.CircleIDs {
			circleIDSet[circleID] = true
		}
	}

	owners, err := s.Store.ListOwners(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	ownerByID := make(map[int32]*store.Owner, len(owners))
	for _, owner := range owners {
		ownerByID[owner.ID] = owner
	}

	circleIDs := make([]int32, 0, len(circleIDSet))
	for circleID := range circleIDSet {
		circleIDs = append(circleIDs, circleID)
	}
	circles, err := s.Store.ListCircles(ctx, circleIDs)
	if err != nil {
		return nil, err
	}
	circleByID := make(map[int32]*store.Circle, len(circles))
	for _, circle := range circles {
		circleByID[circle.ID] = circle
	}

	now := time.Now()
	ttl := time.Duration(s.Profile.ImageURLTTL) * time.Second
	results := make([]*SearchResultView, 0, len(ranked))
	for _, r := range ranked {
		item, ok := itemByID[r.Item.ID]
		if !ok {
			s.recordGap()
			continue
		}
		owner, ok := ownerByID[item.OwnerID]
		if !ok {
			s.recordGap()
			continue
		}

		// A circle row missing its display data is not a gap; the id
		// list stays authoritative and the name is simply absent.
		circleViews := make([]*CircleView, 0, len(item.CircleIDs))
		for _, circleID := range item.CircleIDs {
			if circle, ok := circleByID[circleID]; ok {
				circleViews = append(circleViews, &CircleView{ID: circle.ID, Name: circle.Name})
			}
		}

		results = append(results, &SearchResultView{
			UID:         item.UID,
			Name:        item.Name,
			Description: item.Description,
			Categories:  item.Categories,
			Tags:        item.Tags,
			ImageURL:    signedImageURL(item.ImageRef, s.Profile.ImageSigningSecret, ttl, now),
			CircleIDs:   item.CircleIDs,
			Circles:     circleViews,
			CreatedTs:   item.CreatedTs,
			Score:       r.Score,
			IsOwner:     item.OwnerID == userID,
			Owner: &OwnerView{
				Username:  owner.Username,
				Nickname:  owner.Nickname,
				AvatarURL: owner.AvatarURL,
			},
		})
	}
	return results, nil
}

// parseCircleIDs rejects non-numeric ids before the engine is invoked.
// Unknown but well-formed ids are not an error; scope narrowing drops them.
func parseCircleIDs(raw []string) ([]int32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]int32, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(r), 10, 32)
		if err != nil {
			return nil, errors.Errorf("malformed circle id %q", r)
		}
		ids = append(ids, int32(id))
	}
	return ids, nil
}

func (s *SearchService) recordGap() {
	if s.exporter != nil {
		s.exporter.RecordEnrichmentGap()
	}
}
