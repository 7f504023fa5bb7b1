// Package submit runs the four-step submission sequence: validate the
// candidate file, upload it to the object store, register a pending job, and
// hand the job to the analysis service. Each step's output feeds the next,
// so the steps run strictly in order and the first failure aborts the rest.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/registry"
	"github.com/docuquery/docflow/internal/trigger"
	"github.com/docuquery/docflow/internal/validate"
)

// ErrSubmissionInFlight is returned when Run is called while a previous
// submission on the same orchestrator has not finished.
var ErrSubmissionInFlight = errors.New("a submission is already in flight")

// ObjectStore stores the raw document and returns an opaque reference.
type ObjectStore interface {
	Upload(ctx context.Context, content io.ReadSeeker, fileName string) (string, error)
}

// JobCreator inserts a new pending job row.
type JobCreator interface {
	Create(ctx context.Context, p registry.CreateParams) (string, error)
}

// ProgressFunc receives cosmetic progress updates during a submission.
type ProgressFunc func(models.Progress)

// UploadError means the object store was unreachable or rejected the file.
// No job row exists.
type UploadError struct{ Err error }

func (e *UploadError) Error() string { return fmt.Sprintf("upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// RegistrationError means the registry rejected the job or was unreachable.
// The uploaded object stays behind, orphaned; the registry is the source of
// truth and nothing references the object, so it is left for an operator.
type RegistrationError struct{ Err error }

func (e *RegistrationError) Error() string { return fmt.Sprintf("registration failed: %v", e.Err) }
func (e *RegistrationError) Unwrap() error { return e.Err }

// TriggerError means the analysis service refused or never received the
// hand-off. The job row already exists and stays pending; the orchestrator
// neither retries nor deletes it.
type TriggerError struct{ Err error }

func (e *TriggerError) Error() string { return fmt.Sprintf("trigger failed: %v", e.Err) }
func (e *TriggerError) Unwrap() error { return e.Err }

// Submission is one attempt to analyze a single document.
type Submission struct {
	Owner   string
	File    validate.FileInfo
	Content io.ReadSeeker
	Query   string
}

// Orchestrator sequences one submission at a time. The progress it reports
// is fixed pacing per stage, not a transfer measurement.
type Orchestrator struct {
	store      ObjectStore
	registry   JobCreator
	trigger    trigger.Client
	fileConfig validate.Config
	onProgress ProgressFunc

	mu sync.Mutex
}

func New(store ObjectStore, reg JobCreator, trig trigger.Client, fileConfig validate.Config, onProgress ProgressFunc) *Orchestrator {
	if onProgress == nil {
		onProgress = func(models.Progress) {}
	}
	return &Orchestrator{
		store:      store,
		registry:   reg,
		trigger:    trig,
		fileConfig: fileConfig,
		onProgress: onProgress,
	}
}

// Run executes the submission sequence and returns the new job's identifier.
// A non-empty identifier alongside a non-nil error means the job row was
// created but the analysis hand-off failed; the job will sit pending until
// the analysis service or an operator claims it.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (string, error) {
	if !o.mu.TryLock() {
		return "", ErrSubmissionInFlight
	}
	defer o.mu.Unlock()

	logCtx := slog.With("owner", sub.Owner, "fileName", sub.File.Name)

	if err := validate.Check(sub.File, o.fileConfig); err != nil {
		logCtx.Warn("Rejected file before upload.", "error", err)
		o.onProgress(models.Progress{Stage: models.StageError, Percent: 0, Message: err.Error()})
		return "", err
	}

	o.onProgress(models.Progress{Stage: models.StageUploading, Percent: 10, Message: "Uploading document..."})
	fileRef, err := o.store.Upload(ctx, sub.Content, sub.File.Name)
	if err != nil {
		logCtx.Error("Upload failed.", "error", err)
		o.onProgress(models.Progress{Stage: models.StageError, Percent: 10, Message: err.Error()})
		return "", &UploadError{Err: err}
	}
	logCtx = logCtx.With("fileRef", fileRef)

	o.onProgress(models.Progress{Stage: models.StageQueueing, Percent: 50, Message: "Registering analysis job..."})
	query := strings.TrimSpace(sub.Query)
	if query == "" {
		query = models.DefaultQuery
	}
	jobID, err := o.registry.Create(ctx, registry.CreateParams{
		Owner:    sub.Owner,
		FileRef:  fileRef,
		FileName: sub.File.Name,
		Query:    query,
	})
	if err != nil {
		logCtx.Error("Registration failed, uploaded object is orphaned.", "error", err)
		o.onProgress(models.Progress{Stage: models.StageError, Percent: 50, Message: err.Error()})
		return "", &RegistrationError{Err: err}
	}
	logCtx = logCtx.With("jobId", jobID)
	logCtx.Info("Job registered.")

	o.onProgress(models.Progress{Stage: models.StageProcessing, Percent: 75, Message: "Starting analysis..."})
	err = o.trigger.Trigger(ctx, trigger.Request{
		JobID:          jobID,
		FileRef:        fileRef,
		Owner:          sub.Owner,
		Query:          query,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		logCtx.Error("Trigger failed, job stays pending.", "error", err)
		o.onProgress(models.Progress{Stage: models.StageError, Percent: 75, Message: err.Error()})
		return jobID, &TriggerError{Err: err}
	}

	o.onProgress(models.Progress{Stage: models.StageCompleted, Percent: 100, Message: "Analysis started."})
	logCtx.Info("Hand-off to analysis service complete.")
	return jobID, nil
}
