package directory

import (
	"context"

	"github.com/graphfoundry/subgraph-directory/internal/eventual"
)

// Directory is the read-only view over the published snapshot, handed to
// callers that must never block behind a poll cycle. Lookups are absence-safe:
// unknown identifiers yield empty results, never errors.
type Directory struct {
	sink *eventual.Eventual[*Snapshot]
}

// NewDirectory creates a Directory reading from the given sink
func NewDirectory(sink *eventual.Eventual[*Snapshot]) *Directory {
	return &Directory{sink: sink}
}

// DeploymentSubgraphs returns the subgraphs referencing the given deployment
// in upstream version order. Before the first snapshot exists the call waits
// for it, bounded by ctx; if ctx expires first, the result is empty.
func (d *Directory) DeploymentSubgraphs(ctx context.Context, id DeploymentID) []Subgraph {
	snapshot, err := d.sink.Value(ctx)
	if err != nil {
		return nil
	}
	return snapshot.DeploymentSubgraphs(id)
}

// Subgraph returns the subgraph with the given ID. Before the first snapshot
// exists the call waits for it, bounded by ctx; if ctx expires first, the
// lookup reports absence.
func (d *Directory) Subgraph(ctx context.Context, id SubgraphID) (Subgraph, bool) {
	snapshot, err := d.sink.Value(ctx)
	if err != nil {
		return Subgraph{}, false
	}
	return snapshot.Subgraph(id)
}

// Ready reports whether at least one snapshot has been published
func (d *Directory) Ready() bool {
	return d.sink.Ready()
}

// Stats returns the size of the current snapshot without blocking. ok is
// false when no snapshot has been published yet.
func (d *Directory) Stats() (deployments, subgraphs int, ok bool) {
	snapshot, ok := d.sink.Latest()
	if !ok {
		return 0, 0, false
	}
	return snapshot.DeploymentCount(), snapshot.SubgraphCount(), true
}
