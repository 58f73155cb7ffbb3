package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"
)

const ollamaPrompt = "Transcribe any text visible in this image exactly as written. " +
	"Return only the text itself, nothing else. If no text is visible, return an empty response."

// Vision models report no per-word confidence, so detections carry a nominal
// value well above the filter threshold.
const ollamaNominalConfidence = 80

// Ollama recognizes on-screen text with a local vision model.
type Ollama struct {
	agent *agent.Agent
}

// NewOllama builds the vision agent against a local ollama instance.
func NewOllama(ctx context.Context, baseURL string, port int, model string, logger *slog.Logger) (*Ollama, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := logr.FromSlogHandler(logger.Handler())

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  &l,
		BaseURL: baseURL,
		Port:    port,
	})
	if err := provider.UseModel(ctx, &core.Model{ID: model}); err != nil {
		return nil, fmt.Errorf("select model %s: %w", model, err)
	}

	visionAgent, err := agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithLogger(&l),
		bootstrap.WithSystemPrompt("You are an OCR assistant. You transcribe text overlays from video frames verbatim."),
	)
	if err != nil {
		return nil, fmt.Errorf("create vision agent: %w", err)
	}
	return &Ollama{agent: visionAgent}, nil
}

// RecognizeFrame asks the vision model for a verbatim transcription.
func (o *Ollama) RecognizeFrame(ctx context.Context, imagePath string) (FrameText, error) {
	response, err := o.agent.Run(ctx,
		agent.WithInput(ollamaPrompt),
		agent.WithImagePath(imagePath),
	)
	if err != nil {
		return FrameText{}, &RecognitionError{Frame: imagePath, Err: err}
	}

	last := response.Pop()
	if last == nil {
		return FrameText{}, &RecognitionError{Frame: imagePath, Err: fmt.Errorf("no response from model")}
	}
	content := strings.TrimSpace(last.Content)
	if content == "" {
		return FrameText{}, nil
	}
	return FrameText{
		Text:       cleanText(content),
		Confidence: ollamaNominalConfidence,
	}, nil
}
