package logging

import (
	"context"
	"time"
)

// DetachContextWithTimeout creates a context that won't be cancelled when
// parent is, with its own deadline. Values of parent are kept.
//
// Persistence writes use it so a response is still recorded after the
// request that produced it was cancelled.
//
//	writeCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	err := store.Put(writeCtx, entry)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
