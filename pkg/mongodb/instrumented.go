package mongodb

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/metrics"
)

// Instrumentation records a span, a metric and a debug log line around each
// repository operation. A nil *Instrumentation just runs the operation.
type Instrumentation struct {
	database string
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentation creates instrumentation for one database
func NewInstrumentation(database string, m *metrics.Metrics, logger *logging.Logger) *Instrumentation {
	return &Instrumentation{
		database: database,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("mongodb"),
	}
}

// Observe runs fn as the named operation on collection
func (i *Instrumentation) Observe(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	spanCtx, span := i.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(i.database),
			attribute.String("db.mongodb.collection", collection),
			attribute.String("db.operation", operation),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(spanCtx)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if i.metrics != nil {
		i.metrics.RecordMongoDBOperation(collection, operation, err == nil, duration)
	}
	if i.logger != nil {
		i.logger.DatabaseQuery(ctx, collection, operation, duration, err == nil)
	}

	return err
}
