// Package retrieval implements the circle-scoped semantic search pipeline:
// scope resolution, query embedding, vector ranking, threshold filtering,
// and result shaping.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/circleshare/circleshare/ai"
	"github.com/circleshare/circleshare/ai/metrics"
	"github.com/circleshare/circleshare/store"
)

const (
	// DefaultLimit is applied when the request carries no limit.
	DefaultLimit = 20

	// MaxLimit is the hard cap; larger requests are clamped, not rejected.
	MaxLimit = 100

	// DefaultThreshold is the minimum cosine similarity a result must
	// reach when the request does not set one.
	DefaultThreshold = 0.3
)

// Modality identifies which query inputs drove the embedding.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityFused Modality = "fused"
)

// SearchQuery is a semantic search request after transport decoding.
// Text is treated as absent when blank or whitespace-only.
type SearchQuery struct {
	Text      string
	ImageRef  string
	CircleIDs []int32
	Limit     int
	Threshold *float32
}

// SearchStore is the slice of the store the engine needs.
type SearchStore interface {
	MembershipStore
	ScopedVectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error)
}

// Engine runs the search pipeline. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	store    SearchStore
	embedder ai.EmbeddingService
	scopes   *ScopeResolver
	exporter *metrics.PrometheusExporter
}

// NewEngine creates a search engine. exporter may be nil.
func NewEngine(s SearchStore, embedder ai.EmbeddingService, exporter *metrics.PrometheusExporter) *Engine {
	return &Engine{
		store:    s,
		embedder: embedder,
		scopes:   NewScopeResolver(s),
		exporter: exporter,
	}
}

// Search executes one semantic search on behalf of userID.
//
// An empty resolved scope short-circuits to an empty result before any
// provider call. Embedding failures surface as ai.EmbeddingError after a
// single attempt; there is no keyword fallback.
func (e *Engine) Search(ctx context.Context, userID int32, query *SearchQuery) ([]*store.ItemWithScore, error) {
	start := time.Now()

	modality, err := query.modality()
	if err != nil {
		return nil, err
	}
	limit, threshold, err := query.bounds()
	if err != nil {
		return nil, err
	}

	results, err := e.search(ctx, userID, query, modality, limit, threshold)
	if e.exporter != nil {
		e.exporter.RecordSearch(string(modality), time.Since(start), len(results), err == nil)
	}
	if err != nil {
		slog.Warn("semantic search failed",
			slog.Int("user_id", int(userID)),
			slog.String("modality", string(modality)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, userID int32, query *SearchQuery, modality Modality, limit int, threshold float32) ([]*store.ItemWithScore, error) {
	accessible := e.scopes.ActiveCircles(ctx, userID)
	scope := Narrow(accessible, query.CircleIDs)
	if len(scope) == 0 {
		return []*store.ItemWithScore{}, nil
	}

	vector, err := e.embedQuery(ctx, query, modality)
	if err != nil {
		return nil, err
	}

	ranked, err := e.store.ScopedVectorSearch(ctx, &store.VectorSearchOptions{
		Vector:    vector,
		CircleIDs: scope,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	// Ranked output is already score-descending, so the threshold trims a
	// suffix; the dedupe guards against a driver returning an item once
	// per intersecting circle.
	results := make([]*store.ItemWithScore, 0, len(ranked))
	seen := make(map[int32]bool, len(ranked))
	for _, r := range ranked {
		if r.Score < threshold {
			continue
		}
		if seen[r.Item.ID] {
			continue
		}
		seen[r.Item.ID] = true
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) embedQuery(ctx context.Context, query *SearchQuery, modality Modality) ([]float32, error) {
	start := time.Now()
	var vector []float32
	var err error

	switch modality {
	case ModalityText:
		vector, err = e.embedder.EmbedText(ctx, strings.TrimSpace(query.Text))
	case ModalityImage:
		vector, err = e.embedder.EmbedImage(ctx, query.ImageRef)
	case ModalityFused:
		vector, err = e.embedder.EmbedFused(ctx, query.ImageRef, strings.TrimSpace(query.Text))
	}

	if e.exporter != nil {
		e.exporter.RecordEmbedding("embed_"+string(modality), time.Since(start), err)
	}
	return vector, err
}

// modality selects the query modality from the present inputs.
func (q *SearchQuery) modality() (Modality, error) {
	hasText := strings.TrimSpace(q.Text) != ""
	hasImage := q.ImageRef != ""

	switch {
	case hasText && hasImage:
		return ModalityFused, nil
	case hasText:
		return ModalityText, nil
	case hasImage:
		return ModalityImage, nil
	default:
		return "", invalidQueryf("at least one of text or image is required")
	}
}

// bounds normalizes limit and threshold.
func (q *SearchQuery) bounds() (int, float32, error) {
	limit := q.Limit
	if limit < 0 {
		return 0, 0, invalidQueryf("limit must not be negative")
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	threshold := float32(DefaultThreshold)
	if q.Threshold != nil {
		threshold = *q.Threshold
		if threshold < 0 || threshold > 1 {
			return 0, 0, invalidQueryf("threshold must be within [0, 1]")
		}
	}
	return limit, threshold, nil
}
