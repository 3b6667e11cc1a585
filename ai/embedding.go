// Package ai provides the embedding provider client and the vector math
// shared by the search and write-path pipelines.
package ai

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// EmbeddingService is the vector embedding service interface. All vectors
// share one model and one dimension; mixing models in a single ranking is
// never meaningful.
type EmbeddingService interface {
	// EmbedText generates a vector for a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTextBatch generates vectors for multiple texts in one call.
	EmbedTextBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedImage generates a vector for an image reference (URL or data URI).
	EmbedImage(ctx context.Context, imageRef string) ([]float32, error)

	// EmbedFused generates a single query vector from an image plus a text
	// hint. See fuseVectors for the combination semantics.
	EmbedFused(ctx context.Context, imageRef, text string) ([]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

type embeddingService struct {
	client  *openai.Client
	model   string
	cfg     EmbeddingConfig
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewEmbeddingService creates a new EmbeddingService over any
// OpenAI-compatible embedding endpoint (openai, siliconflow, jina, ollama).
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &embeddingService{
		client:  client,
		model:   cfg.Model,
		cfg:     *cfg,
		limiter: limiter,
		sem:     semaphore.NewWeighted(maxConcurrent),
	}, nil
}

func (s *embeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError("empty text input", nil)
	}
	vectors, err := s.EmbedTextBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedTextBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, NewEmbeddingError("no texts provided", nil)
	}
	return s.embed(ctx, texts, len(texts))
}

func (s *embeddingService) EmbedImage(ctx context.Context, imageRef string) ([]float32, error) {
	if imageRef == "" {
		return nil, NewEmbeddingError("empty image reference", nil)
	}

	// Multimodal providers (jina-clip style) take image inputs as
	// {"image": ...} entries in the same embeddings request.
	input := []map[string]string{{"image": imageRef}}
	vectors, err := s.embed(ctx, input, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedFused(ctx context.Context, imageRef, text string) ([]float32, error) {
	imageVec, err := s.EmbedImage(ctx, imageRef)
	if err != nil {
		return nil, err
	}
	textVec, err := s.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	fused := fuseVectors(imageVec, textVec, s.cfg.FusedTextWeight)
	if fused == nil {
		return nil, NewEmbeddingError("image and text vector dimensions differ", nil)
	}
	return fused, nil
}

func (s *embeddingService) Dimensions() int {
	return s.cfg.Dimensions
}

// embed issues one provider request for want inputs, honoring the rate
// limit, the concurrency bound, and the per-request timeout.
func (s *embeddingService) embed(ctx context.Context, input any, want int) ([][]float32, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, NewEmbeddingError("concurrency bound wait canceled", err)
	}
	defer s.sem.Release(1)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, NewEmbeddingError("rate limit wait canceled", err)
		}
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	req := openai.EmbeddingRequest{
		Input:      input,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.cfg.Dimensions,
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, NewEmbeddingError("provider request failed", err)
	}
	if len(resp.Data) != want {
		return nil, NewEmbeddingError("unexpected embedding count in response", nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != s.cfg.Dimensions {
			return nil, NewEmbeddingError("unexpected embedding dimension in response", nil)
		}
		vectors[i] = data.Embedding
	}
	return vectors, nil
}
