package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing videos dir",
			mutate:  func(c *Config) { c.Paths.VideosDir = "" },
			wantErr: true,
		},
		{
			name:    "missing output dir",
			mutate:  func(c *Config) { c.Paths.OutputDir = "" },
			wantErr: true,
		},
		{
			name:    "unknown ocr engine",
			mutate:  func(c *Config) { c.OCR.Engine = "easyocr" },
			wantErr: true,
		},
		{
			name:    "similarity threshold out of range",
			mutate:  func(c *Config) { c.OCR.SimilarityThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "postgres enabled without dbname",
			mutate:  func(c *Config) { c.Postgres.Enabled = true; c.Postgres.User = "u" },
			wantErr: true,
		},
		{
			name:   "zero workers falls back to default",
			mutate: func(c *Config) { c.Pipeline.Workers = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClampsWorkers(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Workers = -3
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Pipeline.Workers)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[paths]
videos_dir = "clips"
output_dir = "out"

[pipeline]
workers = 8
batch_size = 25
resume = false

[ocr]
engine = "ollama"

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paths.VideosDir != "clips" {
		t.Errorf("VideosDir = %q, want %q", cfg.Paths.VideosDir, "clips")
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Resume {
		t.Error("Resume = true, want false")
	}
	if cfg.OCR.Engine != "ollama" {
		t.Errorf("Engine = %q, want %q", cfg.OCR.Engine, "ollama")
	}
	// Unset sections keep their defaults.
	if cfg.Sampling.FrameInterval != 2.5 {
		t.Errorf("FrameInterval = %v, want 2.5", cfg.Sampling.FrameInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Pipeline.BatchSize)
	}
	if !cfg.Pipeline.Resume {
		t.Error("Resume should default to true")
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if cfg.OCR.Engine != "tesseract" {
		t.Errorf("sample engine = %q, want tesseract", cfg.OCR.Engine)
	}
	if err := WriteSample(path); err == nil {
		t.Error("WriteSample should refuse to overwrite")
	}
}
