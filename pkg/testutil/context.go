package testutil

import (
	"context"
	"time"

	id "sigil/pkg/domain"
	"sigil/pkg/requestcontext"
)

// CallerContext returns a context carrying the given caller account, a fixed
// request time, and a stable request ID, the values the middleware chain
// would normally set.
func CallerContext(caller id.AccountID) context.Context {
	ctx := context.Background()
	ctx = requestcontext.WithCaller(ctx, caller)
	ctx = requestcontext.WithRequestID(ctx, "test-request")
	ctx = requestcontext.WithTime(ctx, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return ctx
}
