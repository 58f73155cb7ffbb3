package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains input and output locations.
type Paths struct {
	VideosDir string `toml:"videos_dir"`
	OutputDir string `toml:"output_dir"`
}

// Pipeline contains scheduling configuration.
type Pipeline struct {
	Workers   int  `toml:"workers"`
	BatchSize int  `toml:"batch_size"`
	MaxVideos int  `toml:"max_videos"`
	Resume    bool `toml:"resume"`
}

// Sampling contains frame extraction configuration.
type Sampling struct {
	FrameInterval  float64 `toml:"frame_interval"`
	ImageFormat    string  `toml:"image_format"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// OCR contains text recognition configuration.
type OCR struct {
	Engine              string  `toml:"engine"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	TesseractBinary     string  `toml:"tesseract_binary"`
	OllamaBaseURL       string  `toml:"ollama_base_url"`
	OllamaPort          int     `toml:"ollama_port"`
	OllamaModel         string  `toml:"ollama_model"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
}

// Transcription contains speech-to-text configuration.
type Transcription struct {
	WhisperBinary  string `toml:"whisper_binary"`
	ModelPath      string `toml:"model_path"`
	Language       string `toml:"language"`
	Threads        int    `toml:"threads"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Postgres contains the optional database sink configuration.
type Postgres struct {
	Enabled        bool   `toml:"enabled"`
	Host           string `toml:"host"`
	Port           string `toml:"port"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbname"`
	EmbeddingModel string `toml:"embedding_model"`
}

// Logging contains log output configuration.
type Logging struct {
	Level string `toml:"level"`
}

// Config is the root configuration for the pipeline.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Sampling      Sampling      `toml:"sampling"`
	OCR           OCR           `toml:"ocr"`
	Transcription Transcription `toml:"transcription"`
	Postgres      Postgres      `toml:"postgres"`
	Logging       Logging       `toml:"logging"`
}

// Default returns a configuration populated with working defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VideosDir: "videos",
			OutputDir: "extracted_content",
		},
		Pipeline: Pipeline{
			Workers:   4,
			BatchSize: 100,
			MaxVideos: 0,
			Resume:    true,
		},
		Sampling: Sampling{
			FrameInterval:  2.5,
			ImageFormat:    "png",
			TimeoutSeconds: 120,
		},
		OCR: OCR{
			Engine:              "tesseract",
			ConfidenceThreshold: 30,
			SimilarityThreshold: 0.8,
			TesseractBinary:     "tesseract",
			OllamaBaseURL:       "http://localhost",
			OllamaPort:          11434,
			OllamaModel:         "llama3.2-vision:11b",
			TimeoutSeconds:      30,
		},
		Transcription: Transcription{
			WhisperBinary:  "whisper-cli",
			Language:       "auto",
			Threads:        4,
			TimeoutSeconds: 300,
		},
		Postgres: Postgres{
			Host:           "localhost",
			Port:           "5432",
			EmbeddingModel: "nomic-embed-text",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads a TOML config file on top of the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks required fields and clamps out-of-range values back to the
// defaults.
func (c *Config) Validate() error {
	if c.Paths.VideosDir == "" {
		return fmt.Errorf("paths.videos_dir is required")
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 100
	}
	if c.Pipeline.MaxVideos < 0 {
		return fmt.Errorf("pipeline.max_videos must not be negative")
	}
	if c.Sampling.FrameInterval <= 0 {
		c.Sampling.FrameInterval = 2.5
	}
	if c.Sampling.ImageFormat == "" {
		c.Sampling.ImageFormat = "png"
	}
	if c.OCR.Engine != "tesseract" && c.OCR.Engine != "ollama" {
		return fmt.Errorf("ocr.engine must be %q or %q, got %q", "tesseract", "ollama", c.OCR.Engine)
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 100 {
		return fmt.Errorf("ocr.confidence_threshold must be within 0-100")
	}
	if c.OCR.SimilarityThreshold <= 0 || c.OCR.SimilarityThreshold > 1 {
		return fmt.Errorf("ocr.similarity_threshold must be within (0, 1]")
	}
	if c.Transcription.Threads <= 0 {
		c.Transcription.Threads = 4
	}
	if c.Postgres.Enabled {
		if c.Postgres.User == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("postgres.user and postgres.dbname are required when postgres is enabled")
		}
	}
	return nil
}

// OutputCSV returns the path of the main output table.
func (c *Config) OutputCSV() string {
	return filepath.Join(c.Paths.OutputDir, "video_content_analysis.csv")
}

// ProgressFile returns the path of the main progress checkpoint.
func (c *Config) ProgressFile() string {
	return filepath.Join(c.Paths.OutputDir, "progress", "progress.json")
}

// TestProgressFile returns a separate checkpoint path used by test runs so
// that the main progress state is never touched.
func (c *Config) TestProgressFile() string {
	return filepath.Join(c.Paths.OutputDir, "progress", "progress_test.json")
}

// FramesDir returns the scratch directory for extracted frames.
func (c *Config) FramesDir() string {
	return filepath.Join(c.Paths.OutputDir, "frames")
}

// AudioDir returns the scratch directory for extracted audio.
func (c *Config) AudioDir() string {
	return filepath.Join(c.Paths.OutputDir, "audio")
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
