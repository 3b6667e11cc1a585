package profile

import (
	"os"
	"testing"
)

func clearEmbeddingEnvVars() {
	os.Unsetenv("CIRCLESHARE_AI_EMBEDDING_PROVIDER")
	os.Unsetenv("CIRCLESHARE_AI_EMBEDDING_API_KEY")
	os.Unsetenv("CIRCLESHARE_AI_EMBEDDING_BASE_URL")
	os.Unsetenv("CIRCLESHARE_AI_EMBEDDING_MODEL")
	os.Unsetenv("CIRCLESHARE_AI_EMBEDDING_DIMENSIONS")
	os.Unsetenv("CIRCLESHARE_IMAGE_SIGNING_SECRET")
	os.Unsetenv("CIRCLESHARE_JWT_SECRET")
}

func TestProfileDefaults(t *testing.T) {
	clearEmbeddingEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"EmbeddingProvider default", "jina", profile.EmbeddingProvider},
		{"EmbeddingBaseURL default", "https://api.jina.ai/v1", profile.EmbeddingBaseURL},
		{"EmbeddingModel default", "jina-clip-v2", profile.EmbeddingModel},
		{"EmbeddingAPIKey default", "", profile.EmbeddingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if profile.EmbeddingDimensions != 1024 {
		t.Errorf("EmbeddingDimensions default: expected 1024, got %d", profile.EmbeddingDimensions)
	}
	if profile.IsEmbeddingEnabled() {
		t.Error("embedding should be disabled without an API key")
	}
}

func TestProfileFromEnv(t *testing.T) {
	clearEmbeddingEnvVars()

	os.Setenv("CIRCLESHARE_AI_EMBEDDING_PROVIDER", "siliconflow")
	os.Setenv("CIRCLESHARE_AI_EMBEDDING_API_KEY", "test-key")
	defer clearEmbeddingEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	if profile.EmbeddingProvider != "siliconflow" {
		t.Errorf("expected siliconflow, got %q", profile.EmbeddingProvider)
	}
	if profile.EmbeddingBaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("provider default base URL not applied, got %q", profile.EmbeddingBaseURL)
	}
	if profile.EmbeddingModel != "BAAI/bge-m3" {
		t.Errorf("provider default model not applied, got %q", profile.EmbeddingModel)
	}
	if !profile.IsEmbeddingEnabled() {
		t.Error("embedding should be enabled with an API key")
	}
}

func TestProfileUnknownProviderFallsBack(t *testing.T) {
	clearEmbeddingEnvVars()

	os.Setenv("CIRCLESHARE_AI_EMBEDDING_PROVIDER", "does-not-exist")
	defer clearEmbeddingEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	if profile.EmbeddingProvider != "jina" {
		t.Errorf("expected fallback to jina, got %q", profile.EmbeddingProvider)
	}
}

func TestProfileValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name:    "sqlite with defaulted DSN",
			profile: Profile{Mode: "dev", Data: dir, Driver: "sqlite", EmbeddingDimensions: 1024},
			wantErr: false,
		},
		{
			name:    "postgres requires DSN",
			profile: Profile{Mode: "dev", Data: dir, Driver: "postgres", EmbeddingDimensions: 1024},
			wantErr: true,
		},
		{
			name:    "unsupported driver",
			profile: Profile{Mode: "dev", Data: dir, Driver: "mysql", EmbeddingDimensions: 1024},
			wantErr: true,
		},
		{
			name:    "invalid dimensions",
			profile: Profile{Mode: "dev", Data: dir, Driver: "sqlite", EmbeddingDimensions: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProfileValidateDefaultsSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	profile := Profile{Mode: "dev", Data: dir, Driver: "sqlite", EmbeddingDimensions: 1024}
	if err := profile.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if profile.DSN == "" {
		t.Fatal("expected DSN to be defaulted for sqlite")
	}
}
