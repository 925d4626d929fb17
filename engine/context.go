package engine

import "context"

// workflowContextKey carries a WorkflowContext into an activity's
// context.Context so activities can log/trace under the owning workflow's
// correlation IDs. Only adapters that can recover this correlation (e.g. the
// Temporal adapter, via run ID) set it.
type workflowContextKey struct{}

// WithWorkflowContext returns a copy of ctx carrying wf for later retrieval
// via WorkflowContextFrom.
func WithWorkflowContext(ctx context.Context, wf WorkflowContext) context.Context {
	return context.WithValue(ctx, workflowContextKey{}, wf)
}

// WorkflowContextFrom returns the WorkflowContext stored in ctx, if any.
func WorkflowContextFrom(ctx context.Context) (WorkflowContext, bool) {
	wf, ok := ctx.Value(workflowContextKey{}).(WorkflowContext)
	return wf, ok
}
