package ocr

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewOllamaBuildsAgent(t *testing.T) {
	// Provider and agent construction are local operations; no server is
	// contacted until the first Run.
	recognizer, err := NewOllama(context.Background(), "http://localhost", 11434, "llama3.2-vision:11b", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if recognizer == nil || recognizer.agent == nil {
		t.Fatal("recognizer not wired to an agent")
	}

	var _ Recognizer = recognizer
}
