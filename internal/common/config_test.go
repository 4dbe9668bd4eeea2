package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Batch.Workers != 10 {
		t.Errorf("workers = %d, want 10", cfg.Batch.Workers)
	}
	if cfg.Batch.FetchTimeout.Seconds() != 20 {
		t.Errorf("fetch timeout = %s, want 20s", cfg.Batch.FetchTimeout)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %s, want postgres", cfg.Database.Driver)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BATCH_WORKERS", "4")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg := LoadConfig()
	if cfg.Batch.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Batch.Workers)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %s, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadConfigFileOverridesEnv(t *testing.T) {
	t.Setenv("BATCH_WORKERS", "4")
	t.Setenv("LLM_MODEL", "env-model")

	dir := t.TempDir()
	yaml := "batch:\n  workers: 7\nllm:\n  model: file-model\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	cfg := LoadConfigFile(dir)
	if cfg.Batch.Workers != 7 {
		t.Errorf("workers = %d, want file value 7", cfg.Batch.Workers)
	}
	if cfg.LLM.Model != "file-model" {
		t.Errorf("model = %s, want file value", cfg.LLM.Model)
	}
	// Keys absent from the file keep env vars and defaults.
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %s, want default postgres", cfg.Database.Driver)
	}
}

func TestLoadConfigFileMissingIsFine(t *testing.T) {
	cfg := LoadConfigFile(t.TempDir())
	if cfg.Batch.Workers != 10 {
		t.Errorf("workers = %d, want default 10", cfg.Batch.Workers)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.Database.DSN = "postgres://localhost/x"
	cfg.LLM.APIKey = "key"
	cfg.Server.HTTPAddr = ":8080"
	cfg.Batch.Workers = 10
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing api key")
	}
}
