package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/clipscribe/clipscribe/internal/embeddings"
	"github.com/clipscribe/clipscribe/internal/merge"
)

// PostgresConfig holds connection details for PostgreSQL.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (c PostgresConfig) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// PostgresSink mirrors the output table into PostgreSQL and stores a vector
// embedding of each video's extracted text for similarity search. Duplicate
// video ids are ignored, keeping the table consistent with the append-only
// CSV under reprocessing.
type PostgresSink struct {
	pool     *pgxpool.Pool
	embedder *embeddings.Service
	logger   *slog.Logger
}

// NewPostgresSink connects to the database and ensures the schema exists.
// The embedder may be nil to disable embeddings.
func NewPostgresSink(ctx context.Context, config PostgresConfig, embedder *embeddings.Service, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, config.connString())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	sink := &PostgresSink{pool: pool, embedder: embedder, logger: logger}
	if err := sink.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func (s *PostgresSink) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS video_records (
            video_id TEXT PRIMARY KEY,
            filename TEXT NOT NULL,
            duration_seconds DOUBLE PRECISION NOT NULL,
            frame_count INTEGER NOT NULL,
            on_screen_text TEXT NOT NULL,
            spoken_phrases TEXT NOT NULL,
            text_timestamps TEXT NOT NULL,
            audio_timestamps TEXT NOT NULL,
            ocr_confidence DOUBLE PRECISION NOT NULL,
            transcription_confidence DOUBLE PRECISION NOT NULL,
            processing_status TEXT NOT NULL,
            error_notes TEXT NOT NULL,
            processed_timestamp TIMESTAMPTZ NOT NULL,
            content_embedding vector(768)
        );
        CREATE INDEX IF NOT EXISTS idx_video_records_status
            ON video_records(processing_status);
    `)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Append inserts one record. Embedding failures degrade to a row without an
// embedding; they never block the write.
func (s *PostgresSink) Append(ctx context.Context, record merge.Record) error {
	var embedding *pgvector.Vector
	if s.embedder != nil {
		content := strings.TrimSpace(record.OnScreenText + " " + record.SpokenPhrases)
		if content != "" {
			vec, err := s.embedder.Embed(ctx, content)
			if err != nil {
				s.logger.Warn("embedding failed, storing record without it",
					"video", record.VideoID, "error", err)
			} else {
				v := pgvector.NewVector(vec)
				embedding = &v
			}
		}
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO video_records (
            video_id, filename, duration_seconds, frame_count,
            on_screen_text, spoken_phrases, text_timestamps, audio_timestamps,
            ocr_confidence, transcription_confidence,
            processing_status, error_notes, processed_timestamp,
            content_embedding
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (video_id) DO NOTHING`,
		record.VideoID, record.Filename, record.DurationSeconds, record.FrameCount,
		record.OnScreenText, record.SpokenPhrases, record.TextTimestamps, record.AudioTimestamps,
		record.OCRConfidence, record.TranscriptionConfidence,
		string(record.ProcessingStatus), record.ErrorNotes, record.ProcessedAt,
		embedding,
	)
	if err != nil {
		return &StorageError{Op: "insert record", Err: err}
	}
	return nil
}

// SimilarVideo is one result of a content similarity search.
type SimilarVideo struct {
	VideoID      string
	OnScreenText string
	Similarity   float64
}

// SearchSimilar finds videos whose extracted content is closest to the query
// text. Requires an embedder.
func (s *PostgresSink) SearchSimilar(ctx context.Context, query string, limit int) ([]SimilarVideo, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("similarity search requires an embedder")
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
        SELECT video_id, on_screen_text,
               1 - (content_embedding <=> $1) AS similarity
        FROM video_records
        WHERE content_embedding IS NOT NULL
        ORDER BY content_embedding <=> $1
        LIMIT $2`,
		pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var results []SimilarVideo
	for rows.Next() {
		var result SimilarVideo
		if err := rows.Scan(&result.VideoID, &result.OnScreenText, &result.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// HasRecord reports whether a row exists for the video id.
func (s *PostgresSink) HasRecord(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM video_records WHERE video_id = $1)",
		videoID).Scan(&exists)
	if err != nil && err != pgx.ErrNoRows {
		return false, fmt.Errorf("check record: %w", err)
	}
	return exists, nil
}

func (s *PostgresSink) Close() error {
	if s.embedder != nil {
		s.embedder.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
