package core

import "context"

type contextKey string

const (
	ctxKeyRunID     contextKey = "run_id"
	ctxKeyPartition contextKey = "partition"
)

// ContextWithRunID tags ctx with the current run ID for logging.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, id)
}

// ContextWithPartition tags ctx with the partition being processed.
func ContextWithPartition(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKeyPartition, key)
}

// RunIDFromContext extracts the run ID from context.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// PartitionFromContext extracts the partition key from context.
func PartitionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyPartition).(string); ok {
		return v
	}
	return ""
}
