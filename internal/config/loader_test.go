package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/audiojournal/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audiojournal.yaml")
	if err := os.WriteFile(path, []byte("batch:\n  concurrency: 6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.Concurrency != 6 {
		t.Errorf("batch.concurrency: got %d, want 6", cfg.Batch.Concurrency)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("expected parse error naming %s, got %v", path, err)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("AJ_TEST_DOTENV=from-file\nAJ_TEST_KEEP=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AJ_TEST_KEEP", "from-env")
	t.Setenv("AJ_TEST_DOTENV", "")
	os.Unsetenv("AJ_TEST_DOTENV")

	if err := config.LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("AJ_TEST_DOTENV"); got != "from-file" {
		t.Errorf("AJ_TEST_DOTENV = %q, want from-file", got)
	}
	if got := os.Getenv("AJ_TEST_KEEP"); got != "from-env" {
		t.Errorf("AJ_TEST_KEEP = %q, want the existing value kept", got)
	}
}

func TestApplyDefaults_KeepsSetValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Paths:     config.PathsConfig{JournalDir: "j"},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai"}},
		Batch:     config.BatchConfig{Concurrency: 8},
	}
	config.ApplyDefaults(cfg)

	if cfg.Paths.JournalDir != "j" || cfg.Paths.EntitiesDir != config.DefaultEntitiesDir {
		t.Errorf("paths: got %+v", cfg.Paths)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "" {
		t.Errorf("llm: got %+v, want the set block untouched", cfg.Providers.LLM)
	}
	if cfg.Batch.Concurrency != 8 || cfg.Batch.Pattern != config.DefaultPattern {
		t.Errorf("batch: got %+v", cfg.Batch)
	}
	if cfg.Pipeline.MentionContext != config.DefaultMentionContext {
		t.Errorf("mention_context: got %q", cfg.Pipeline.MentionContext)
	}
}
