package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dbTracerName  = "crmpulse/db"
	crmTracerName = "crmpulse/crm"
)

type contextKey string

const (
	locationIDContextKey contextKey = "observability.location_id"
	requestIDKey         contextKey = "observability.request_id"
	routeKey             contextKey = "observability.route"
)

// Span is the application-level tracing span contract.
type Span interface {
	End()
	RecordError(error)
}

type otelSpan struct {
	inner trace.Span
}

// StartDBSpan starts a database tracing span for one query operation.
func StartDBSpan(ctx context.Context, queryName, operation string) (context.Context, Span) {
	queryName = strings.TrimSpace(queryName)
	if queryName == "" {
		queryName = "unknown"
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system.name", "sqlite"),
		attribute.String("db.query_name", queryName),
		attribute.String("db.operation", strings.TrimSpace(operation)),
	}
	if locationID, ok := LocationIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("crm.location_id", locationID))
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, "db."+queryName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, otelSpan{inner: span}
}

// StartTraversalSpan starts a span covering one paginated upstream traversal.
func StartTraversalSpan(ctx context.Context, endpoint string) (context.Context, Span) {
	attrs := []attribute.KeyValue{
		attribute.String("crm.endpoint", strings.TrimSpace(endpoint)),
	}
	if locationID, ok := LocationIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("crm.location_id", locationID))
	}
	ctx, span := otel.Tracer(crmTracerName).Start(ctx, "crm.collect "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, otelSpan{inner: span}
}

// WithLocationID enriches context and current span with the location id.
func WithLocationID(ctx context.Context, locationID string) context.Context {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, locationIDContextKey, locationID)
	if span := trace.SpanFromContext(ctx); span != nil {
		span.SetAttributes(attribute.String("crm.location_id", locationID))
	}
	return ctx
}

// WithRequestMetadata enriches context and current span with request metadata.
func WithRequestMetadata(ctx context.Context, requestID, route string) context.Context {
	requestID = strings.TrimSpace(requestID)
	route = strings.TrimSpace(route)
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if route != "" {
		ctx = context.WithValue(ctx, routeKey, route)
	}
	setSpanRequestAttributes(ctx, requestID, route)
	return ctx
}

// LocationIDFromContext extracts the active location id.
func LocationIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(locationIDContextKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// RequestIDFromContext extracts request id.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// RouteFromContext extracts normalized route path.
func RouteFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(routeKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func setSpanRequestAttributes(ctx context.Context, requestID, route string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, 2)
	if requestID != "" {
		attrs = append(attrs, attribute.String("request.id", requestID))
	}
	if route != "" {
		attrs = append(attrs, attribute.String("http.route", route))
	}
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}

func (s otelSpan) End() {
	if s.inner == nil {
		return
	}
	s.inner.End()
}

func (s otelSpan) RecordError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}
