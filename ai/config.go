package ai

import (
	"errors"
	"time"

	"github.com/circleshare/circleshare/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	Enabled   bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration

	// FusedTextWeight is the weight of the text vector in the fused
	// image+text embedding when the provider has no joint input.
	// See EmbedFused for the fusion semantics.
	FusedTextWeight float32

	// MaxConcurrent bounds in-flight provider calls.
	MaxConcurrent int64

	// RequestsPerSecond rate-limits provider calls. Zero disables.
	RequestsPerSecond float64
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsEmbeddingEnabled(),
	}
	if !cfg.Enabled {
		return cfg
	}

	timeout := time.Duration(p.EmbeddingTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:          p.EmbeddingProvider,
		Model:             p.EmbeddingModel,
		APIKey:            p.EmbeddingAPIKey,
		BaseURL:           p.EmbeddingBaseURL,
		Dimensions:        p.EmbeddingDimensions,
		Timeout:           timeout,
		FusedTextWeight:   0.65,
		MaxConcurrent:     8,
		RequestsPerSecond: 10,
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	if c.Embedding.FusedTextWeight < 0 || c.Embedding.FusedTextWeight > 1 {
		return errors.New("fused text weight must be within [0, 1]")
	}
	return nil
}
