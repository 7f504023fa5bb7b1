// Package registry is the durable job table. Rows are created once by the
// submitting client and thereafter mutated only by the analysis service;
// readers observe them through a continuous snapshot subscription.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/docuquery/docflow/internal/models"
)

// Registry stores jobs in a single Firestore collection.
type Registry struct {
	client     *firestore.Client
	collection string
}

func New(client *firestore.Client, collection string) (*Registry, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection must be provided to create a registry")
	}
	return &Registry{client: client, collection: collection}, nil
}

// CreateParams carries the immutable fields of a new job. Status and Result
// are deliberately absent: a job always starts pending with no result, and
// only the analysis service writes those fields afterwards.
type CreateParams struct {
	Owner    string
	FileRef  string
	FileName string
	Query    string
}

func (p CreateParams) validate() error {
	switch {
	case p.Owner == "":
		return fmt.Errorf("owner is required")
	case p.FileRef == "":
		return fmt.Errorf("fileRef is required")
	case p.FileName == "":
		return fmt.Errorf("fileName is required")
	case p.Query == "":
		return fmt.Errorf("query is required")
	}
	return nil
}

// Create inserts a new pending job and returns its identifier.
func (r *Registry) Create(ctx context.Context, p CreateParams) (string, error) {
	if err := p.validate(); err != nil {
		return "", fmt.Errorf("invalid job: %w", err)
	}

	job := models.Job{
		Owner:    p.Owner,
		FileRef:  p.FileRef,
		FileName: p.FileName,
		Query:    p.Query,
		Status:   models.StatusPending,
	}
	docRef, _, err := r.client.Collection(r.collection).Add(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return docRef.ID, nil
}

// ExistsForFile reports whether a job already references the given stored
// object, and if so which one. Used by the intake path to skip duplicates.
func (r *Registry) ExistsForFile(ctx context.Context, fileRef string) (bool, string, error) {
	docs, err := r.client.Collection(r.collection).
		Where("fileRef", "==", fileRef).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

// ListPendingBefore returns every job still pending that was created before
// the cutoff, oldest first. These are the orphan candidates: registered rows
// the analysis service never claimed.
func (r *Registry) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	it := r.client.Collection(r.collection).
		Where("status", "==", string(models.StatusPending)).
		Where("createdAt", "<", cutoff).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var jobs []models.Job
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pending jobs: %w", err)
		}
		var job models.Job
		if err := doc.DataTo(&job); err != nil {
			slog.Warn("Skipping undecodable job row.", "docId", doc.Ref.ID, "error", err)
			continue
		}
		job.ID = doc.Ref.ID
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Snapshot is one complete delivery of a user's jobs, newest first. Each
// delivery replaces the previous one wholesale; consumers must never merge
// field-by-field. A non-nil Err means the subscription channel itself
// degraded, which says nothing about any individual job's status.
type Snapshot struct {
	Jobs []models.Job
	Err  error
}

// Watch subscribes to the given owner's jobs and sends a fresh Snapshot on
// every change the server pushes. The returned channel closes when ctx ends
// or the subscription fails; the failure is delivered as a final Snapshot
// with Err set.
func (r *Registry) Watch(ctx context.Context, owner string) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		it := r.client.Collection(r.collection).
			Where("owner", "==", owner).
			OrderBy("createdAt", firestore.Desc).
			Snapshots(ctx)
		defer it.Stop()

		for {
			qsnap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Job subscription failed.", "owner", owner, "error", err)
				sendSnapshot(ctx, out, Snapshot{Err: fmt.Errorf("job subscription failed: %w", err)})
				return
			}

			docs, err := qsnap.Documents.GetAll()
			if err != nil {
				slog.Error("Failed to read snapshot documents.", "owner", owner, "error", err)
				sendSnapshot(ctx, out, Snapshot{Err: fmt.Errorf("failed to read snapshot: %w", err)})
				return
			}

			jobs := make([]models.Job, 0, len(docs))
			for _, doc := range docs {
				var job models.Job
				if err := doc.DataTo(&job); err != nil {
					slog.Warn("Skipping undecodable job row.", "docId", doc.Ref.ID, "error", err)
					continue
				}
				job.ID = doc.Ref.ID
				jobs = append(jobs, job)
			}

			if !sendSnapshot(ctx, out, Snapshot{Jobs: jobs}) {
				return
			}
		}
	}()

	return out
}

// sendSnapshot delivers latest-wins: if the consumer hasn't drained the
// previous snapshot yet it is discarded, since only the newest delivery is
// the truth.
func sendSnapshot(ctx context.Context, out chan Snapshot, s Snapshot) bool {
	for {
		select {
		case out <- s:
			return true
		case <-ctx.Done():
			return false
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
