package store

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of store spans.
const TracerName = "github.com/campusflow/campus-queue/internal/store"

type tracedStore struct {
	Store
	tracer trace.Tracer
}

// WithTracing wraps s so every unit of work runs inside a "store.atomic" span.
// Reads pass straight through.
func WithTracing(s Store, tracer trace.Tracer) Store {
	return &tracedStore{Store: s, tracer: tracer}
}

func (t *tracedStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := t.tracer.Start(ctx, "store.atomic", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	err := t.Store.Atomic(ctx, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
