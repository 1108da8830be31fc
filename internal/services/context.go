package services

import "context"

type contextKey int

const (
	itemIDKey contextKey = iota
	stageKey
	brandKey
	requestIDKey
)

// WithWorkflow scopes ctx to one stage run of a workflow record so logs and
// errors raised below it carry the record id, brand, and stage.
func WithWorkflow(ctx context.Context, id int64, brand, stage string) context.Context {
	return WithStage(WithBrand(WithItemID(ctx, id), brand), stage)
}

// WithItemID annotates ctx with the workflow record identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext returns the workflow record identifier if present.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(itemIDKey).(int64)
	return id, ok
}

// WithStage annotates ctx with the workflow stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithBrand annotates ctx with the brand a workflow publishes for.
func WithBrand(ctx context.Context, brand string) context.Context {
	return withString(ctx, brandKey, brand)
}

// BrandFromContext returns the brand if present.
func BrandFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, brandKey)
}

// WithRequestID annotates ctx with the inbound request's correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation id if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

// Blank values leave ctx untouched so an outer value is never masked.
func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}
