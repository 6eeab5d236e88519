package services

import "context"

type contextKey string

const (
	entryKey        contextKey = "entry"
	segmentIndexKey contextKey = "segment_index"
)

// WithEntry annotates context with the playlist entry path being processed.
func WithEntry(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, entryKey, path)
}

// EntryFromContext extracts the playlist entry path if present.
func EntryFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(entryKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSegmentIndex annotates context with the current segment position.
func WithSegmentIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, segmentIndexKey, index)
}

// SegmentIndexFromContext extracts the segment position if present.
func SegmentIndexFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(segmentIndexKey).(int); ok {
		return v, true
	}
	return 0, false
}
