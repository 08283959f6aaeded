package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all pipeline metrics. A nil *Metrics is valid and records
// nothing, so callers never need to guard.
type Metrics struct {
	DocumentsProcessed metric.Int64Counter
	DocumentsFailed    metric.Int64Counter
	EnrichDuration     metric.Float64Histogram
	IndexUpserts       metric.Int64Counter
	IndexFailures      metric.Int64Counter
}

// InitMetrics initializes all pipeline metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("post-insight-pipeline")

	documentsProcessed, err := meter.Int64Counter(
		"pipeline.documents.processed",
		metric.WithDescription("Documents fully enriched"),
	)
	if err != nil {
		return nil, err
	}

	documentsFailed, err := meter.Int64Counter(
		"pipeline.documents.failed",
		metric.WithDescription("Documents that failed a pipeline stage"),
	)
	if err != nil {
		return nil, err
	}

	enrichDuration, err := meter.Float64Histogram(
		"pipeline.enrich.duration",
		metric.WithDescription("Per-document enrichment duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	indexUpserts, err := meter.Int64Counter(
		"index.upserts.total",
		metric.WithDescription("Documents upserted into the search index"),
	)
	if err != nil {
		return nil, err
	}

	indexFailures, err := meter.Int64Counter(
		"index.upserts.failed",
		metric.WithDescription("Search index upserts that exhausted retries"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DocumentsProcessed: documentsProcessed,
		DocumentsFailed:    documentsFailed,
		EnrichDuration:     enrichDuration,
		IndexUpserts:       indexUpserts,
		IndexFailures:      indexFailures,
	}, nil
}

// RecordProcessed records a fully enriched document
func (m *Metrics) RecordProcessed(ctx context.Context, duration time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsProcessed.Add(ctx, 1)
	m.EnrichDuration.Record(ctx, duration.Seconds())
}

// RecordFailure records a failed pipeline stage for a document
func (m *Metrics) RecordFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.DocumentsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.stage", stage),
	))
}

// RecordIndexed records a successful index upsert
func (m *Metrics) RecordIndexed(ctx context.Context) {
	if m == nil {
		return
	}
	m.IndexUpserts.Add(ctx, 1)
}

// RecordIndexFailure records an index upsert that exhausted its retries
func (m *Metrics) RecordIndexFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.IndexFailures.Add(ctx, 1)
}
