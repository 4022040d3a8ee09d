package orchestrator

import "context"

type depthKey struct{}

// withChatDepth returns a context carrying the current chat nesting depth.
func withChatDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// chatDepth reports the nesting depth recorded in ctx; zero for a top-level
// run.
func chatDepth(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}
