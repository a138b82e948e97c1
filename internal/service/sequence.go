package service

import (
	"context"
	"fmt"
)

// CounterStore is the atomic find-and-increment primitive backing order
// numbers. Satisfied by *database.Queries.
type CounterStore interface {
	NextSequence(ctx context.Context, prefix string) (int64, error)
}

// SequenceAllocator issues unique, strictly increasing order numbers per
// prefix. Uniqueness is guaranteed by the storage-level atomic increment,
// not by any in-process locking, so it holds across service instances.
type SequenceAllocator struct {
	store CounterStore
}

func NewSequenceAllocator(store CounterStore) *SequenceAllocator {
	return &SequenceAllocator{store: store}
}

// Next allocates the next number for prefix and formats it as
// "{PREFIX}-{seq zero-padded to 6 digits}", e.g. TOK-000042.
func (a *SequenceAllocator) Next(ctx context.Context, prefix string) (string, error) {
	seq, err := a.store.NextSequence(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("next sequence for %q: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}
