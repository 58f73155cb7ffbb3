// Package storage appends output records to durable sinks.
package storage

import (
	"context"
	"fmt"

	"github.com/clipscribe/clipscribe/internal/merge"
)

// Sink receives output records. Append must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, record merge.Record) error
	Close() error
}

// StorageError means the output table or the progress checkpoint could not
// be written. It is the only error class that halts the whole run: without
// durable writes no further progress can be guaranteed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MultiSink fans an append out to several sinks; the first failure wins.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, record merge.Record) error {
	for _, sink := range m {
		if err := sink.Append(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
