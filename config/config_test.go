package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retrieve.TopK != 3 {
		t.Errorf("expected TopK=3, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected embedding model text-embedding-3-small, got %s", cfg.Embedding.Model)
	}
	if cfg.Generation.Model != "gpt-4o-mini" {
		t.Errorf("expected generation model gpt-4o-mini, got %s", cfg.Generation.Model)
	}
	if cfg.Generation.MaxTokens != 500 {
		t.Errorf("expected MaxTokens=500, got %d", cfg.Generation.MaxTokens)
	}
	if cfg.Store.Path != "embeddings.json" {
		t.Errorf("expected store path embeddings.json, got %s", cfg.Store.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "quotes.yaml")

	content := `
store:
  format: bolt
  path: quotes.db
retrieve:
  top_k: 5
embedding:
  timeout: 5s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Format != "bolt" {
		t.Errorf("expected Format=bolt, got %s", cfg.Store.Format)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("expected Timeout=5s, got %s", cfg.Embedding.Timeout)
	}
	if cfg.Generation.Model != "gpt-4o-mini" {
		t.Errorf("unset fields should keep defaults, got %s", cfg.Generation.Model)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "quotes.yaml")

	content := `
retrieve:
  top_k: 0
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected validation error for top_k=0")
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "quotes.yaml")

	if err := os.WriteFile(configPath, []byte("embedding:\n  provider: carrier-pigeon\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected validation error for unknown provider")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".quotes"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".quotes", "config.yaml")

	content := `
generation:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Generation.Enabled {
		t.Error("expected generation disabled")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "quotes.yaml")

	cfg := DefaultConfig()
	cfg.Retrieve.TopK = 7
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Retrieve.TopK != 7 {
		t.Errorf("expected TopK=7, got %d", loaded.Retrieve.TopK)
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.StorePath("/home/user/quotes")
	expected := filepath.Join("/home/user/quotes", "embeddings.json")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg.Store.Path = "/var/lib/quotes.db"
	if got := cfg.StorePath("/ignored"); got != "/var/lib/quotes.db" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("QUOTERAG_TEST_KEY", "sk-test")
	if got := APIKey("QUOTERAG_TEST_KEY"); got != "sk-test" {
		t.Errorf("expected sk-test, got %q", got)
	}
	if got := APIKey(""); got != "" {
		t.Errorf("expected empty key for empty env name, got %q", got)
	}
}
