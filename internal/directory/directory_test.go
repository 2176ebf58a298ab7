package directory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphfoundry/subgraph-directory/internal/directory"
	"github.com/graphfoundry/subgraph-directory/internal/eventual"
)

func TestDirectory_LookupsBeforeFirstSnapshot(t *testing.T) {
	t.Parallel()

	sink := eventual.New[*directory.Snapshot]()
	dir := directory.NewDirectory(sink)

	assert.False(t, dir.Ready())

	// With no snapshot published, a bounded context expires and the
	// lookups report absence instead of blocking forever.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Empty(t, dir.DeploymentSubgraphs(ctx, "D1"))

	_, ok := dir.Subgraph(ctx, "S1")
	assert.False(t, ok)

	_, _, ok = dir.Stats()
	assert.False(t, ok)
}

func TestDirectory_WaitsForFirstSnapshot(t *testing.T) {
	t.Parallel()

	sink := eventual.New[*directory.Snapshot]()
	dir := directory.NewDirectory(sink)

	go func() {
		time.Sleep(10 * time.Millisecond)
		sink.Publish(directory.NewSnapshot([]directory.DeploymentRecord{
			record("0x01", "D1", "S1"),
		}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	subgraphs := dir.DeploymentSubgraphs(ctx, "D1")
	require.Len(t, subgraphs, 1)
	assert.Equal(t, directory.SubgraphID("S1"), subgraphs[0].ID)
}

func TestDirectory_LookupsAfterPublish(t *testing.T) {
	t.Parallel()

	sink := eventual.New[*directory.Snapshot]()
	dir := directory.NewDirectory(sink)

	sink.Publish(directory.NewSnapshot([]directory.DeploymentRecord{
		record("0x01", "D1", "S1", "S2"),
		record("0x02", "D2", "S3"),
	}))

	assert.True(t, dir.Ready())

	ctx := context.Background()

	assert.Len(t, dir.DeploymentSubgraphs(ctx, "D1"), 2)
	assert.Empty(t, dir.DeploymentSubgraphs(ctx, "unknown"))

	got, ok := dir.Subgraph(ctx, "S3")
	require.True(t, ok)
	assert.Equal(t, directory.SubgraphID("S3"), got.ID)

	_, ok = dir.Subgraph(ctx, "unknown")
	assert.False(t, ok)

	deployments, subgraphs, ok := dir.Stats()
	require.True(t, ok)
	assert.Equal(t, 2, deployments)
	assert.Equal(t, 3, subgraphs)
}

func TestDirectory_CancelledContextStillServesPublished(t *testing.T) {
	t.Parallel()

	sink := eventual.New[*directory.Snapshot]()
	dir := directory.NewDirectory(sink)

	sink.Publish(directory.NewSnapshot([]directory.DeploymentRecord{
		record("0x01", "D1", "S1"),
	}))

	// Once a snapshot exists, lookups succeed even on a dead context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Len(t, dir.DeploymentSubgraphs(ctx, "D1"), 1)
}
