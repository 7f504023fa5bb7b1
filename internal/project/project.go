// Package project derives the client's view of its jobs from the registry
// subscription. The view is always a pure lookup into the latest snapshot;
// nothing here caches or patches individual job fields, so a status change
// pushed by the analysis service is visible on the very next read.
package project

import (
	"context"
	"errors"
	"sync"

	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/registry"
)

// ErrSubscriptionClosed is returned by WaitFor when the snapshot stream ended
// before the awaited condition held.
var ErrSubscriptionClosed = errors.New("job subscription closed")

// Select looks up a job by identifier in a snapshot. It is a pure function;
// a false return means the row is not in this snapshot, which right after
// creation is a transient condition, not an error.
func Select(jobs []models.Job, id string) (models.Job, bool) {
	for _, job := range jobs {
		if job.ID == id {
			return job, true
		}
	}
	return models.Job{}, false
}

// Projector holds the latest snapshot of one user's jobs. Each delivery
// replaces the previous one wholesale.
type Projector struct {
	mu      sync.RWMutex
	jobs    []models.Job
	loading bool
	err     error
	updated chan struct{}
}

// New starts consuming the given snapshot stream. It returns immediately;
// the projector reports loading until the first snapshot arrives.
func New(snapshots <-chan registry.Snapshot) *Projector {
	p := &Projector{
		loading: true,
		updated: make(chan struct{}),
	}
	go p.consume(snapshots)
	return p
}

func (p *Projector) consume(snapshots <-chan registry.Snapshot) {
	for snap := range snapshots {
		p.mu.Lock()
		p.loading = false
		if snap.Err != nil {
			// Degraded channel: keep the last good snapshot, it is
			// stale but not wrong.
			p.err = snap.Err
		} else {
			p.jobs = snap.Jobs
			p.err = nil
		}
		close(p.updated)
		p.updated = make(chan struct{})
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.loading = false
	if p.err == nil {
		p.err = ErrSubscriptionClosed
	}
	close(p.updated)
	p.updated = make(chan struct{})
	p.mu.Unlock()
}

// Jobs returns the latest snapshot, newest first.
func (p *Projector) Jobs() []models.Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	jobs := make([]models.Job, len(p.jobs))
	copy(jobs, p.jobs)
	return jobs
}

// Get resolves a job by identifier against the latest snapshot.
func (p *Projector) Get(id string) (models.Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Select(p.jobs, id)
}

// Loading reports whether no snapshot has been delivered yet.
func (p *Projector) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Err reports the state of the subscription channel itself. It is
// independent of any individual job's status.
func (p *Projector) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// WaitFor blocks until the latest snapshot contains a job with the given
// identifier satisfying pred, then returns it. A job missing from the
// current snapshot is treated as not-yet-delivered, so WaitFor simply waits
// for the next one.
func (p *Projector) WaitFor(ctx context.Context, id string, pred func(models.Job) bool) (models.Job, error) {
	for {
		p.mu.RLock()
		job, ok := Select(p.jobs, id)
		err := p.err
		updated := p.updated
		p.mu.RUnlock()

		if ok && pred(job) {
			return job, nil
		}
		if err != nil {
			return models.Job{}, err
		}

		select {
		case <-updated:
		case <-ctx.Done():
			return models.Job{}, ctx.Err()
		}
	}
}
