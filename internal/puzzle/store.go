package puzzle

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/NicoNav/igsaw-puzzle-app/internal/domain"
)

// BatchStore runs generation batches in the background and serves progress
// snapshots to polling callers. Batches live for the process lifetime; the
// remote history endpoint is the durable record.
type BatchStore struct {
	generator *Generator

	mu      sync.Mutex
	batches map[string]*domain.Batch
}

// NewBatchStore wraps a generator.
func NewBatchStore(generator *Generator) *BatchStore {
	return &BatchStore{
		generator: generator,
		batches:   make(map[string]*domain.Batch),
	}
}

// Start launches a batch run and returns its id immediately. Structural
// failures (an empty batch) fail fast instead of creating a run.
func (s *BatchStore) Start(ctx context.Context, pieces []domain.Piece, imageFilename string) (string, error) {
	if len(pieces) == 0 {
		return "", domain.ErrEmptyBatch
	}

	batch := &domain.Batch{
		ID:       uuid.NewString(),
		Status:   domain.BatchStatusRunning,
		Progress: domain.BatchProgress{Current: 0, Total: len(pieces)},
		Pieces:   make([]domain.Piece, len(pieces)),
	}
	for i, piece := range pieces {
		piece.Status = domain.PieceStatusPending
		batch.Pieces[i] = piece
	}

	s.mu.Lock()
	s.batches[batch.ID] = batch
	s.mu.Unlock()

	go s.run(ctx, batch.ID, imageFilename)
	return batch.ID, nil
}

// Get returns a snapshot of the batch. The copy is independent of the
// running batch, so callers can hold it across the run's mutations.
func (s *BatchStore) Get(id string) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrBatchNotFound
	}
	snapshot := *batch
	snapshot.Pieces = append([]domain.Piece(nil), batch.Pieces...)
	return snapshot, nil
}

func (s *BatchStore) run(ctx context.Context, batchID, imageFilename string) {
	pieces := s.withBatch(batchID, func(b *domain.Batch) []domain.Piece {
		return append([]domain.Piece(nil), b.Pieces...)
	})

	// Piece transitions are synced back under the lock as they happen, so
	// pollers see per-piece status while the run is still going.
	generator := s.generator.withHooks(
		func(p domain.BatchProgress) {
			s.withBatch(batchID, func(b *domain.Batch) []domain.Piece {
				b.Progress = p
				return nil
			})
		},
		func(i int, piece domain.Piece) {
			s.withBatch(batchID, func(b *domain.Batch) []domain.Piece {
				if i >= 0 && i < len(b.Pieces) {
					b.Pieces[i] = piece
				}
				return nil
			})
		},
	)

	done, err := generator.GenerateAll(ctx, pieces, imageFilename)
	s.withBatch(batchID, func(b *domain.Batch) []domain.Piece {
		if done != nil {
			b.Pieces = done
		}
		if err != nil {
			b.Status = domain.BatchStatusFailed
			b.Error = err.Error()
		} else {
			b.Status = domain.BatchStatusComplete
		}
		return nil
	})
}

func (s *BatchStore) withBatch(id string, fn func(*domain.Batch) []domain.Piece) []domain.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil
	}
	return fn(batch)
}

// withHooks returns a shallow copy of the generator with replacement
// observation hooks, leaving the original (and its session) untouched.
func (g *Generator) withHooks(onProgress func(domain.BatchProgress), onPiece func(int, domain.Piece)) *Generator {
	clone := *g
	clone.onProgress = onProgress
	clone.onPiece = onPiece
	return &clone
}
