package arbor

import (
	"context"
)

// Backend is the storage service the Engine drives. Each Submit call carries a
// whole batch and must be treated as a unit of work by the implementation;
// the Engine never calls it with an empty batch.
type Backend interface {
	SubmitWrites(ctx context.Context, writes []Write) *Async[struct{}]
	SubmitDeletes(ctx context.Context, keys []Key) *Async[struct{}]
	// SubmitReads returns one node per key, in order, nil for absent keys.
	SubmitReads(ctx context.Context, keys []Key) *Async[[]Node]
}
