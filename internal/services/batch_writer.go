package services

import (
	"context"
	"log/slog"

	"github.com/anonto42/nano-midea/engine/internal/metrics"
	"github.com/anonto42/nano-midea/engine/internal/repositories"
)

// DefaultChunkSize leaves headroom under the store's atomic write cap for
// concurrent writers touching the same documents.
const DefaultChunkSize = 400

// BatchWriter commits an arbitrarily long list of writes as a sequence of
// bounded atomic groups.
type BatchWriter struct {
	store     repositories.DocumentStore
	chunkSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewBatchWriter creates a BatchWriter. chunkSize is clamped to 1..MaxBatchWrites;
// zero or less selects DefaultChunkSize.
func NewBatchWriter(store repositories.DocumentStore, chunkSize int, logger *slog.Logger, m *metrics.Metrics) *BatchWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{
		store:     store,
		chunkSize: ClampChunkSize(chunkSize),
		logger:    logger,
		metrics:   m,
	}
}

// ClampChunkSize bounds a configured chunk size to what one commit accepts.
func ClampChunkSize(n int) int {
	switch {
	case n <= 0:
		return DefaultChunkSize
	case n > repositories.MaxBatchWrites:
		return repositories.MaxBatchWrites
	}
	return n
}

func (w *BatchWriter) ChunkSize() int { return w.chunkSize }

// Chunk splits writes into contiguous groups of at most size, preserving order.
func Chunk(writes []repositories.Write, size int) [][]repositories.Write {
	if len(writes) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	groups := make([][]repositories.Write, 0, (len(writes)+size-1)/size)
	for start := 0; start < len(writes); start += size {
		end := start + size
		if end > len(writes) {
			end = len(writes)
		}
		groups = append(groups, writes[start:end])
	}
	return groups
}

// Commit is CommitEach without a per-group callback.
func (w *BatchWriter) Commit(ctx context.Context, writes []repositories.Write) error {
	return w.CommitEach(ctx, writes, nil)
}

// CommitEach commits the groups strictly in sequence, calling afterGroup once a
// group is durable. The first failing group stops the run and is reported as a
// *PartialWriteError; earlier groups are not rolled back. An empty input
// commits nothing.
func (w *BatchWriter) CommitEach(ctx context.Context, writes []repositories.Write, afterGroup func(group []repositories.Write)) error {
	groups := Chunk(writes, w.chunkSize)
	written := 0
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return &PartialWriteError{Committed: i, Total: len(groups), Written: written, Err: err}
		}
		err := w.store.Commit(ctx, group)
		w.metrics.BatchCommit(err)
		if err != nil {
			w.logger.Error("batch group commit failed",
				slog.Int("group", i+1),
				slog.Int("groups", len(groups)),
				slog.Int("committed_writes", written),
				slog.String("error", err.Error()),
			)
			return &PartialWriteError{Committed: i, Total: len(groups), Written: written, Err: err}
		}
		written += len(group)
		w.logger.Debug("batch group committed", slog.Int("group", i+1), slog.Int("groups", len(groups)), slog.Int("writes", len(group)))
		if afterGroup != nil {
			afterGroup(group)
		}
	}
	return nil
}
