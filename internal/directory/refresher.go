package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/graphfoundry/subgraph-directory/internal/eventual"
	internalotel "github.com/graphfoundry/subgraph-directory/internal/otel"
	"github.com/graphfoundry/subgraph-directory/internal/telemetry"
)

const (
	// DefaultPollInterval is the interval between poll cycles
	DefaultPollInterval = 30 * time.Second

	// DefaultPageSize is the number of records requested per page
	DefaultPageSize = 200
)

// ErrEmptyUpdate is returned when a poll cycle produced an empty page set.
// The previous snapshot is retained; the next tick retries.
var ErrEmptyUpdate = errors.New("discarding empty update (subgraph deployments)")

// ErrPollInFlight is returned when a poll cycle is requested while another
// is still running. The requesting tick is dropped, not queued.
var ErrPollInFlight = errors.New("poll cycle already in flight")

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=refresher.go PageFetcher

// PageFetcher retrieves one page of deployment records from the network
// subgraph, ordered ascending by entity ID. cursor is the entity ID of the
// last record of the previous page, or empty for the first page. first
// bounds the page size.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string, first int) ([]DeploymentRecord, error)
}

// Refresher drains the network subgraph on a fixed timer and publishes the
// merged result into the snapshot sink. At most one poll cycle runs at a
// time; ticks arriving while a cycle is in flight are dropped, not queued.
type Refresher struct {
	fetcher  PageFetcher
	sink     *eventual.Eventual[*Snapshot]
	interval time.Duration
	pageSize int

	// pollMu serializes poll cycles. Acquired with TryLock so an
	// overlapping tick is dropped instead of queued.
	pollMu sync.Mutex

	// Lifecycle management. stateMu guards cancelFunc, which Start writes
	// and Stop reads from different goroutines.
	stateMu    sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}

	// Metrics
	pollMetrics      *telemetry.PollMetrics
	directoryMetrics *telemetry.DirectoryMetrics

	// Tracing (nil means no spans are emitted)
	tracer trace.Tracer
}

// RefresherOption is a function that configures the refresher
type RefresherOption func(*Refresher)

// WithPollInterval sets the interval between poll cycles
func WithPollInterval(interval time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.interval = interval
	}
}

// WithPageSize sets the page size used when draining the upstream source
func WithPageSize(size int) RefresherOption {
	return func(r *Refresher) {
		r.pageSize = size
	}
}

// WithPollMetrics sets the poll metrics for the refresher
func WithPollMetrics(metrics *telemetry.PollMetrics) RefresherOption {
	return func(r *Refresher) {
		r.pollMetrics = metrics
	}
}

// WithDirectoryMetrics sets the directory metrics for the refresher
func WithDirectoryMetrics(metrics *telemetry.DirectoryMetrics) RefresherOption {
	return func(r *Refresher) {
		r.directoryMetrics = metrics
	}
}

// WithTracer sets the tracer used to record poll cycle spans
func WithTracer(tracer trace.Tracer) RefresherOption {
	return func(r *Refresher) {
		r.tracer = tracer
	}
}

// NewRefresher creates a new refresher with injected dependencies
func NewRefresher(fetcher PageFetcher, sink *eventual.Eventual[*Snapshot], opts ...RefresherOption) *Refresher {
	r := &Refresher{
		fetcher:  fetcher,
		sink:     sink,
		interval: DefaultPollInterval,
		pageSize: DefaultPageSize,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start begins the periodic poll loop. Blocks until ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	slog.Info("Starting directory refresher",
		"interval", r.interval,
		"page_size", r.pageSize)

	pollCtx, cancel := context.WithCancel(ctx)
	r.stateMu.Lock()
	r.cancelFunc = cancel
	r.stateMu.Unlock()
	defer func() {
		close(r.done)
		slog.Info("Directory refresher shutting down")
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Poll immediately so readers do not wait a full interval for the
	// first snapshot.
	r.poll(pollCtx)

	for {
		select {
		case <-ticker.C:
			r.poll(pollCtx)
		case <-pollCtx.Done():
			slog.Info("Directory refresher stopping")
			return nil
		}
	}
}

// Stop gracefully stops the refresher and waits for the loop to exit
func (r *Refresher) Stop() error {
	r.stateMu.Lock()
	cancel := r.cancelFunc
	r.stateMu.Unlock()

	if cancel != nil {
		slog.Info("Stopping directory refresher")
		cancel()
		<-r.done
	}
	return nil
}

// poll runs one cycle and routes the outcome to logs and metrics
func (r *Refresher) poll(ctx context.Context) {
	startTime := time.Now()
	err := r.PollOnce(ctx)
	pollDuration := time.Since(startTime)

	switch {
	case err == nil:
		r.pollMetrics.RecordPollDuration(ctx, pollDuration, true)
	case errors.Is(err, ErrPollInFlight):
		slog.Debug("Dropping tick, poll cycle already in flight")
		r.pollMetrics.RecordDroppedTick(ctx)
	case errors.Is(err, ErrEmptyUpdate):
		slog.Error("Poll cycle discarded", "error", err)
		r.pollMetrics.RecordEmptyUpdate(ctx)
		r.pollMetrics.RecordPollDuration(ctx, pollDuration, false)
	default:
		slog.Error("Poll cycle failed", "error", err)
		r.pollMetrics.RecordPollDuration(ctx, pollDuration, false)
	}
}

// PollOnce drains all pages, merges them into a new snapshot, and publishes
// it. Any transport failure or an empty aggregate page set aborts the cycle
// without publishing; the previously published snapshot stays current. There
// is no retry within a cycle - the next tick is the retry mechanism.
func (r *Refresher) PollOnce(ctx context.Context) error {
	if !r.pollMu.TryLock() {
		return ErrPollInFlight
	}
	defer r.pollMu.Unlock()

	ctx, span := internalotel.StartSpan(ctx, r.tracer, "directory.poll",
		trace.WithAttributes(internalotel.AttrPageSize.Int(r.pageSize)))
	defer span.End()

	records, pages, err := r.fetchAllPages(ctx)
	if err != nil {
		err = fmt.Errorf("failed to fetch subgraph deployments: %w", err)
		internalotel.RecordError(span, err)
		return err
	}
	span.SetAttributes(
		internalotel.AttrPageCount.Int(pages),
		internalotel.AttrRecordCount.Int(len(records)),
	)

	if len(records) == 0 {
		internalotel.RecordError(span, ErrEmptyUpdate)
		return ErrEmptyUpdate
	}

	snapshot := NewSnapshot(records)

	if dupes := snapshot.DuplicateSubgraphIDs(); dupes > 0 {
		// Not expected under the data model; last record wins.
		slog.Warn("Duplicate subgraph IDs in page set", "count", dupes)
		r.pollMetrics.RecordDuplicateSubgraphIDs(ctx, int64(dupes))
	}

	r.sink.Publish(snapshot)
	span.SetAttributes(
		internalotel.AttrDeploymentCount.Int(snapshot.DeploymentCount()),
		internalotel.AttrSubgraphCount.Int(snapshot.SubgraphCount()),
	)
	r.directoryMetrics.RecordSnapshotSize(ctx,
		int64(snapshot.DeploymentCount()),
		int64(snapshot.SubgraphCount()))

	slog.Info("Published directory snapshot",
		"deployments", snapshot.DeploymentCount(),
		"subgraphs", snapshot.SubgraphCount(),
		"records", len(records))

	return nil
}

// fetchAllPages requests pages until the upstream source is exhausted,
// signalled by a page shorter than the requested size. It also reports how
// many pages were fetched.
func (r *Refresher) fetchAllPages(ctx context.Context) ([]DeploymentRecord, int, error) {
	var records []DeploymentRecord

	cursor := ""
	for pages := 1; ; pages++ {
		page, err := r.fetcher.FetchPage(ctx, cursor, r.pageSize)
		if err != nil {
			return nil, 0, err
		}

		records = append(records, page...)

		if len(page) < r.pageSize {
			return records, pages, nil
		}
		cursor = page[len(page)-1].ID
	}
}
