package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipscribe/clipscribe/internal/embeddings"
	"github.com/clipscribe/clipscribe/internal/execx"
	"github.com/clipscribe/clipscribe/internal/media"
	"github.com/clipscribe/clipscribe/internal/ocr"
	"github.com/clipscribe/clipscribe/internal/pipeline"
	"github.com/clipscribe/clipscribe/internal/progress"
	"github.com/clipscribe/clipscribe/internal/sampler"
	"github.com/clipscribe/clipscribe/internal/storage"
	"github.com/clipscribe/clipscribe/internal/transcribe"
)

// runtime bundles the assembled pipeline with everything that needs closing
// when a run ends.
type runtime struct {
	controller *pipeline.Controller
	store      *progress.Store
	sink       storage.Sink
	logger     *slog.Logger
}

func (r *runtime) close() {
	if err := r.sink.Close(); err != nil {
		r.logger.Warn("closing output sink", "error", err)
	}
}

// buildRuntime assembles the full stage chain from the configuration.
// maxVideos caps how many videos the run may process; zero means unlimited.
func buildRuntime(ctx context.Context, app *appContext, progressPath string, maxVideos int) (*runtime, error) {
	cfg := app.cfg

	store, err := progress.Open(progressPath, app.logger)
	if err != nil {
		return nil, fmt.Errorf("open progress checkpoint: %w", err)
	}

	samplerRunner := execx.New(time.Duration(cfg.Sampling.TimeoutSeconds) * time.Second)
	frameSampler := sampler.New(cfg.FramesDir(), cfg.Sampling.FrameInterval, cfg.Sampling.ImageFormat, samplerRunner, app.logger)

	recognizer, err := buildRecognizer(ctx, app)
	if err != nil {
		return nil, err
	}
	textStage := ocr.NewStage(recognizer, cfg.OCR.ConfidenceThreshold, cfg.OCR.SimilarityThreshold, app.logger)

	whisper := transcribe.NewWhisper(
		cfg.Transcription.WhisperBinary,
		cfg.Transcription.ModelPath,
		cfg.Transcription.Language,
		cfg.Transcription.Threads,
		execx.New(time.Duration(cfg.Transcription.TimeoutSeconds)*time.Second),
	)
	speechStage := transcribe.NewStage(whisper, samplerRunner, cfg.AudioDir(), app.logger)

	sink, err := buildSinks(ctx, app)
	if err != nil {
		return nil, err
	}

	var lister pipeline.Lister = media.NewCatalog(cfg.Paths.VideosDir, store)
	if maxVideos > 0 {
		lister = &limitedLister{inner: lister, remaining: maxVideos}
	}

	controller := pipeline.New(pipeline.Options{
		Catalog:    lister,
		Checkpoint: store,
		Sampler:    frameSampler,
		Text:       textStage,
		Speech:     speechStage,
		Sink:       sink,
		Workers:    cfg.Pipeline.Workers,
		BatchSize:  cfg.Pipeline.BatchSize,
		Logger:     app.logger,
	})

	return &runtime{controller: controller, store: store, sink: sink, logger: app.logger}, nil
}

func buildRecognizer(ctx context.Context, app *appContext) (ocr.Recognizer, error) {
	cfg := app.cfg
	switch cfg.OCR.Engine {
	case "ollama":
		recognizer, err := ocr.NewOllama(ctx, cfg.OCR.OllamaBaseURL, cfg.OCR.OllamaPort, cfg.OCR.OllamaModel, app.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to ollama: %w", err)
		}
		return recognizer, nil
	default:
		runner := execx.New(time.Duration(cfg.OCR.TimeoutSeconds) * time.Second)
		return ocr.NewTesseract(cfg.OCR.TesseractBinary, cfg.OCR.ConfidenceThreshold, runner), nil
	}
}

func buildSinks(ctx context.Context, app *appContext) (storage.Sink, error) {
	cfg := app.cfg

	csvSink, err := storage.NewCSVSink(cfg.OutputCSV())
	if err != nil {
		return nil, fmt.Errorf("open output table: %w", err)
	}
	if !cfg.Postgres.Enabled {
		return csvSink, nil
	}

	embedder := embeddings.NewService(
		embeddings.OllamaEmbedder(cfg.OCR.OllamaBaseURL, cfg.OCR.OllamaPort, cfg.Postgres.EmbeddingModel),
		cfg.Pipeline.Workers,
	)
	pgSink, err := storage.NewPostgresSink(ctx, postgresConfig(app), embedder, app.logger)
	if err != nil {
		return nil, fmt.Errorf("open postgres sink: %w", err)
	}
	return storage.MultiSink{csvSink, pgSink}, nil
}

func postgresConfig(app *appContext) storage.PostgresConfig {
	return storage.PostgresConfig{
		Host:     app.cfg.Postgres.Host,
		Port:     app.cfg.Postgres.Port,
		User:     app.cfg.Postgres.User,
		Password: app.cfg.Postgres.Password,
		DBName:   app.cfg.Postgres.DBName,
	}
}

// limitedLister caps the total number of videos handed out across batches.
// Only the controller's dispatch loop calls it, so no locking is needed.
type limitedLister struct {
	inner     pipeline.Lister
	remaining int
}

func (l *limitedLister) ListPending(max int) ([]media.Item, error) {
	if l.remaining <= 0 {
		return nil, nil
	}
	if max <= 0 || max > l.remaining {
		max = l.remaining
	}
	items, err := l.inner.ListPending(max)
	l.remaining -= len(items)
	return items, err
}
