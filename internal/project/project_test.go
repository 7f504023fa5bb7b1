package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/registry"
)

const (
	waitLong = time.Second
	waitTick = 5 * time.Millisecond
)

func job(id string, status models.JobStatus) models.Job {
	return models.Job{
		ID:       id,
		Owner:    "user-1",
		FileRef:  "gs://uploads/" + id,
		FileName: id + ".pdf",
		Query:    models.DefaultQuery,
		Status:   status,
	}
}

func TestSelect(t *testing.T) {
	jobs := []models.Job{job("j1", models.StatusPending), job("j2", models.StatusCompleted)}

	got, ok := Select(jobs, "j2")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, got.Status)

	_, ok = Select(jobs, "j9")
	assert.False(t, ok)

	_, ok = Select(nil, "j1")
	assert.False(t, ok)
}

func TestProjectorLoadingUntilFirstSnapshot(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	assert.True(t, p.Loading())
	assert.Empty(t, p.Jobs())
	_, ok := p.Get("j1")
	assert.False(t, ok)

	snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusPending)}}
	require.Eventually(t, func() bool { return !p.Loading() }, waitLong, waitTick)

	got, ok := p.Get("j1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, got.Status)
	close(snapshots)
}

func TestProjectorStatusFollowsLatestSnapshot(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusProcessing)}}
	require.Eventually(t, func() bool {
		j, ok := p.Get("j1")
		return ok && j.Status == models.StatusProcessing
	}, waitLong, waitTick)

	done := job("j1", models.StatusCompleted)
	done.Result = "Revenue grew 12% quarter over quarter."
	snapshots <- registry.Snapshot{Jobs: []models.Job{done}}

	// The view re-derives from the push; no client action involved.
	require.Eventually(t, func() bool {
		j, ok := p.Get("j1")
		return ok && j.Status == models.StatusCompleted
	}, waitLong, waitTick)
	j, _ := p.Get("j1")
	assert.Equal(t, "Revenue grew 12% quarter over quarter.", j.Result)
	close(snapshots)
}

func TestProjectorSnapshotReplacesNotMerges(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	snapshots <- registry.Snapshot{Jobs: []models.Job{
		job("j1", models.StatusPending),
		job("j2", models.StatusPending),
	}}
	require.Eventually(t, func() bool { return len(p.Jobs()) == 2 }, waitLong, waitTick)

	// A row absent from the next delivery is gone, not remembered.
	snapshots <- registry.Snapshot{Jobs: []models.Job{job("j2", models.StatusProcessing)}}
	require.Eventually(t, func() bool { return len(p.Jobs()) == 1 }, waitLong, waitTick)

	_, ok := p.Get("j1")
	assert.False(t, ok)
	close(snapshots)
}

func TestProjectorKeepsLastGoodSnapshotOnError(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusPending)}}
	require.Eventually(t, func() bool { return len(p.Jobs()) == 1 }, waitLong, waitTick)

	snapshots <- registry.Snapshot{Err: errors.New("stream reset")}
	require.Eventually(t, func() bool { return p.Err() != nil }, waitLong, waitTick)

	// Stale but not wrong: the jobs remain visible.
	_, ok := p.Get("j1")
	assert.True(t, ok)
	close(snapshots)
}

func TestWaitForReturnsOnTerminalStatus(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	go func() {
		snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusPending)}}
		snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusProcessing)}}
		done := job("j1", models.StatusCompleted)
		done.Result = "all good"
		snapshots <- registry.Snapshot{Jobs: []models.Job{done}}
	}()

	got, err := p.WaitFor(context.Background(), "j1", func(j models.Job) bool {
		return j.Status.Terminal()
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "all good", got.Result)
	close(snapshots)
}

func TestWaitForJobNotYetDelivered(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	// First delivery doesn't contain the job yet; WaitFor must treat that
	// as transient and keep waiting for the next snapshot.
	go func() {
		snapshots <- registry.Snapshot{Jobs: nil}
		snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusFailed)}}
	}()

	got, err := p.WaitFor(context.Background(), "j1", func(j models.Job) bool {
		return j.Status.Terminal()
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	close(snapshots)
}

func TestWaitForStopsOnContextCancel(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.WaitFor(ctx, "never", func(models.Job) bool { return true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(snapshots)
}

func TestWaitForStopsOnSubscriptionError(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	go func() {
		snapshots <- registry.Snapshot{Err: errors.New("stream reset")}
	}()

	_, err := p.WaitFor(context.Background(), "j1", func(models.Job) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream reset")
	close(snapshots)
}

func TestProjectorClosedChannelReportsErr(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)
	close(snapshots)

	require.Eventually(t, func() bool { return p.Err() != nil }, waitLong, waitTick)
	assert.ErrorIs(t, p.Err(), ErrSubscriptionClosed)
}

func TestProjectorJobsReturnsCopy(t *testing.T) {
	snapshots := make(chan registry.Snapshot)
	p := New(snapshots)

	snapshots <- registry.Snapshot{Jobs: []models.Job{job("j1", models.StatusPending)}}
	require.Eventually(t, func() bool { return len(p.Jobs()) == 1 }, waitLong, waitTick)

	view := p.Jobs()
	view[0].Status = models.StatusFailed

	fresh, _ := p.Get("j1")
	assert.Equal(t, models.StatusPending, fresh.Status)
	close(snapshots)
}
