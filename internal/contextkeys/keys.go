package contextkeys

import "context"

// CtxKey is a custom type for context keys to avoid collisions.
type CtxKey string

// RequestBodyKey is the key for storing the raw request body in the context.
const RequestBodyKey CtxKey = "requestBody"

// WithRequestBody stores the raw body read by the signature middleware.
func WithRequestBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, RequestBodyKey, body)
}

// RequestBody returns the raw body stored by WithRequestBody.
func RequestBody(ctx context.Context) ([]byte, bool) {
	body, ok := ctx.Value(RequestBodyKey).([]byte)
	return body, ok
}
