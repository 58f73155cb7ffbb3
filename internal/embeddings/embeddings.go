// Package embeddings generates vector embeddings for extracted text through
// a small worker pool with a content cache.
package embeddings

import (
	"context"
	"fmt"
	"sync"
)

// EmbedFunc produces a vector for one piece of text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Result is the outcome of one embedding request.
type Result struct {
	Text      string
	Embedding []float32
	Error     error
}

type work struct {
	text   string
	result chan<- Result
}

// Service generates embeddings asynchronously, caching by content so the
// same overlay text across many videos is embedded once.
type Service struct {
	embed     EmbedFunc
	workQueue chan work
	cache     sync.Map
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewService starts numWorkers embedding workers.
func NewService(embed EmbedFunc, numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	s := &Service{
		embed:     embed,
		workQueue: make(chan work, 100),
	}
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Service) worker() {
	defer s.wg.Done()
	for item := range s.workQueue {
		if cached, ok := s.cache.Load(item.text); ok {
			if embedding, valid := cached.([]float32); valid {
				item.result <- Result{Text: item.text, Embedding: embedding}
				continue
			}
		}

		embedding, err := s.embed(context.Background(), item.text)
		if err == nil {
			s.cache.Store(item.text, embedding)
		}
		item.result <- Result{Text: item.text, Embedding: embedding, Error: err}
	}
}

// Get requests an embedding asynchronously. When the queue is full the
// request fails immediately rather than blocking the caller.
func (s *Service) Get(text string) <-chan Result {
	resultChan := make(chan Result, 1)
	select {
	case s.workQueue <- work{text: text, result: resultChan}:
	default:
		resultChan <- Result{
			Text:  text,
			Error: fmt.Errorf("embedding queue is full"),
		}
		close(resultChan)
	}
	return resultChan
}

// Embed waits for an embedding synchronously, honoring ctx cancellation.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case result := <-s.Get(text):
		return result.Embedding, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the service down and waits for in-flight work.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.workQueue)
	})
	s.wg.Wait()
}
