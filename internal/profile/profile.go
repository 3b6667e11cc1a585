package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Embedding provider configuration (OpenAI-compatible protocol)
	// All providers (openai, siliconflow, jina, ollama) use the same config.
	EmbeddingProvider   string // Provider identifier: openai, siliconflow, jina, ollama
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string // Optional, has default per provider
	EmbeddingModel      string
	EmbeddingDimensions int // Vector dimension, must match the stored column
	EmbeddingTimeout    int // Provider request timeout in seconds (default: 30)

	// Image URL signing
	ImageSigningSecret string // HMAC secret for time-limited image URLs
	ImageURLTTL        int    // Signed URL lifetime in seconds (default: 900)

	// Auth
	JWTSecret string // HS256 secret for bearer tokens

	Mode        string
	Addr        string
	Port        int
	UNIXSock    string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string
}

// Provider default configurations for embedding endpoints.
// Used when CIRCLESHARE_AI_EMBEDDING_BASE_URL is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "text-embedding-3-small",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-m3",
	},
	"jina": {
		BaseURL: "https://api.jina.ai/v1",
		Model:   "jina-clip-v2",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "nomic-embed-text",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled returns true if an embedding provider is configured.
// Without one, items persist but never participate in similarity ranking.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.EmbeddingAPIKey != "" || p.EmbeddingProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = getEnvOrDefault("CIRCLESHARE_AI_EMBEDDING_PROVIDER", "jina")
	p.EmbeddingAPIKey = getEnvOrDefault("CIRCLESHARE_AI_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("CIRCLESHARE_AI_EMBEDDING_BASE_URL", "")
	p.EmbeddingModel = getEnvOrDefault("CIRCLESHARE_AI_EMBEDDING_MODEL", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("CIRCLESHARE_AI_EMBEDDING_DIMENSIONS", 1024)
	p.EmbeddingTimeout = getEnvOrDefaultInt("CIRCLESHARE_AI_EMBEDDING_TIMEOUT_SECONDS", 30)

	if p.EmbeddingProvider != "" {
		if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
			slog.Warn("Unknown embedding provider, using default: jina", "provider", p.EmbeddingProvider)
			p.EmbeddingProvider = "jina"
		}
	}
	if p.EmbeddingBaseURL == "" || p.EmbeddingModel == "" {
		if defaults, ok := embeddingProviderDefaults[p.EmbeddingProvider]; ok {
			if p.EmbeddingBaseURL == "" {
				p.EmbeddingBaseURL = defaults.BaseURL
			}
			if p.EmbeddingModel == "" {
				p.EmbeddingModel = defaults.Model
			}
		}
	}

	p.ImageSigningSecret = getEnvOrDefault("CIRCLESHARE_IMAGE_SIGNING_SECRET", "")
	p.ImageURLTTL = getEnvOrDefaultInt("CIRCLESHARE_IMAGE_URL_TTL_SECONDS", 900)
	p.JWTSecret = getEnvOrDefault("CIRCLESHARE_JWT_SECRET", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "circleshare")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/circleshare"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("circleshare_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile) + "?_time_format=sqlite"
	}

	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions: %d", p.EmbeddingDimensions)
	}
	if p.Mode == "prod" && p.JWTSecret == "" {
		return errors.New("CIRCLESHARE_JWT_SECRET is required in prod mode")
	}

	return nil
}
