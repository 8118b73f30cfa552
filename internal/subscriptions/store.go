package subscriptions

import (
	"context"
	"sort"
)

// Store persists subscription records. Implementations must be safe for
// concurrent use; the dispatcher only reads.
type Store interface {
	// List returns every unexpired record.
	List(ctx context.Context) ([]Record, error)
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)
	// Put creates or replaces the record under rec.Key.
	Put(ctx context.Context, rec Record) error
	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Latest returns the most recently updated unexpired record.
func Latest(ctx context.Context, store Store) (Record, error) {
	records, err := store.List(ctx)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records[0], nil
}
