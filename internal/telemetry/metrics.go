package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// PollMetricsMeterName is the name used for the poll metrics meter
	PollMetricsMeterName = "github.com/graphfoundry/subgraph-directory/poll"

	// DirectoryMetricsMeterName is the name used for the directory metrics meter
	DirectoryMetricsMeterName = "github.com/graphfoundry/subgraph-directory/directory"
)

// PollMetrics holds the OpenTelemetry instruments for poll cycle metrics
type PollMetrics struct {
	pollDuration metric.Float64Histogram
	droppedTicks metric.Int64Counter
	emptyUpdates metric.Int64Counter
	duplicateIDs metric.Int64Counter
}

// NewPollMetrics creates a new PollMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewPollMetrics(provider metric.MeterProvider) (*PollMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PollMetricsMeterName)

	pollDuration, err := meter.Float64Histogram(
		"subgraph_directory_poll_duration_seconds",
		metric.WithDescription("Duration of directory poll cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	droppedTicks, err := meter.Int64Counter(
		"subgraph_directory_poll_dropped_ticks_total",
		metric.WithDescription("Timer ticks dropped because a poll cycle was already in flight"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	emptyUpdates, err := meter.Int64Counter(
		"subgraph_directory_poll_empty_updates_total",
		metric.WithDescription("Poll cycles discarded because the upstream page set was empty"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	duplicateIDs, err := meter.Int64Counter(
		"subgraph_directory_duplicate_subgraph_ids_total",
		metric.WithDescription("Subgraph IDs observed more than once within a single page set"),
		metric.WithUnit("{subgraph}"),
	)
	if err != nil {
		return nil, err
	}

	return &PollMetrics{
		pollDuration: pollDuration,
		droppedTicks: droppedTicks,
		emptyUpdates: emptyUpdates,
		duplicateIDs: duplicateIDs,
	}, nil
}

// RecordPollDuration records the duration of one poll cycle
func (m *PollMetrics) RecordPollDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.pollDuration == nil {
		return
	}

	m.pollDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordDroppedTick records a timer tick dropped due to an in-flight cycle
func (m *PollMetrics) RecordDroppedTick(ctx context.Context) {
	if m == nil || m.droppedTicks == nil {
		return
	}

	m.droppedTicks.Add(ctx, 1)
}

// RecordEmptyUpdate records a discarded empty update
func (m *PollMetrics) RecordEmptyUpdate(ctx context.Context) {
	if m == nil || m.emptyUpdates == nil {
		return
	}

	m.emptyUpdates.Add(ctx, 1)
}

// RecordDuplicateSubgraphIDs records duplicate SubgraphIDs seen in one page set
func (m *PollMetrics) RecordDuplicateSubgraphIDs(ctx context.Context, count int64) {
	if m == nil || m.duplicateIDs == nil || count == 0 {
		return
	}

	m.duplicateIDs.Add(ctx, count)
}

// DirectoryMetrics holds the OpenTelemetry instruments for directory size metrics
type DirectoryMetrics struct {
	deploymentsTotal metric.Int64Gauge
	subgraphsTotal   metric.Int64Gauge
}

// NewDirectoryMetrics creates a new DirectoryMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewDirectoryMetrics(provider metric.MeterProvider) (*DirectoryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(DirectoryMetricsMeterName)

	deploymentsTotal, err := meter.Int64Gauge(
		"subgraph_directory_deployments_total",
		metric.WithDescription("Number of distinct deployments in the published snapshot"),
		metric.WithUnit("{deployment}"),
	)
	if err != nil {
		return nil, err
	}

	subgraphsTotal, err := meter.Int64Gauge(
		"subgraph_directory_subgraphs_total",
		metric.WithDescription("Number of distinct subgraphs in the published snapshot"),
		metric.WithUnit("{subgraph}"),
	)
	if err != nil {
		return nil, err
	}

	return &DirectoryMetrics{
		deploymentsTotal: deploymentsTotal,
		subgraphsTotal:   subgraphsTotal,
	}, nil
}

// RecordSnapshotSize records the size of a freshly published snapshot
func (m *DirectoryMetrics) RecordSnapshotSize(ctx context.Context, deployments, subgraphs int64) {
	if m == nil || m.deploymentsTotal == nil {
		return
	}

	m.deploymentsTotal.Record(ctx, deployments)
	m.subgraphsTotal.Record(ctx, subgraphs)
}
