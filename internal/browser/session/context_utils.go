// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext returns a context derived from ctx1 that is also canceled
// when ctx2 is done. The session passes its lifecycle context as ctx1 and the
// caller's per-operation context as ctx2, so closing the session aborts any
// request in flight. The returned cancel must always be called.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
