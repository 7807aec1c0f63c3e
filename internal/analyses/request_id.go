package analyses

import "context"

type requestIDKey struct{}

// WithRequestID attaches a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// LogFields builds telemetry fields carrying the analysis and request ids.
func LogFields(ctx context.Context, analysisID string, extra map[string]any) map[string]any {
	fields := make(map[string]any, len(extra)+2)
	fields["analysis_id"] = analysisID
	if id := requestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}
