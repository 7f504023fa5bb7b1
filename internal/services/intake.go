package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/docuquery/docflow/internal/gcp"
	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/registry"
	"github.com/docuquery/docflow/internal/trigger"
	"github.com/docuquery/docflow/internal/validate"
)

// IntakeConfig configures the event-driven submission path, where a document
// dropped into the intake bucket is registered and triggered without a
// client in the loop.
type IntakeConfig struct {
	ProjectID      string
	CollectionName string
	TriggerURL     string
	DefaultOwner   string
	FileConfig     validate.Config
}

// IntakeFunction holds the dependencies for the intake logic.
type IntakeFunction struct {
	storageClient *storage.Client
	registry      *registry.Registry
	trigger       trigger.Client
	config        IntakeConfig
}

// GCSEvent is the storage object finalize payload delivered by Eventarc.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// NewIntake wires the intake function from environment configuration.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	triggerURL := gcp.GetEnv("ANALYSIS_TRIGGER_URL", "")
	if triggerURL == "" {
		return nil, fmt.Errorf("ANALYSIS_TRIGGER_URL environment variable must be set")
	}

	config := IntakeConfig{
		ProjectID:      projectID,
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "jobs"),
		TriggerURL:     triggerURL,
		DefaultOwner:   gcp.GetEnv("INTAKE_DEFAULT_OWNER", "intake-service"),
		FileConfig:     validate.DefaultConfig(),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	reg, err := registry.New(firestoreClient, config.CollectionName)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	webhook, err := trigger.NewWebhook(config.TriggerURL, http.DefaultClient)
	if err != nil {
		return nil, err
	}

	f := &IntakeFunction{
		storageClient: storageClient,
		registry:      reg,
		trigger:       webhook,
		config:        config,
	}
	slog.Info("Intake logic initialized.", "collection", config.CollectionName)
	return f, nil
}

// Process registers and triggers analysis for one newly finalized object.
// The object is already durably stored, so the upload step of the client
// sequence has effectively happened; only register and trigger remain.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new intake object.")

	attrs, err := f.storageClient.Bucket(e.Bucket).Object(e.Name).Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to stat gs://%s/%s: %w", e.Bucket, e.Name, err)
	}

	info := validate.FileInfo{
		Name:      filepath.Base(e.Name),
		SizeBytes: attrs.Size,
		MediaType: attrs.ContentType,
	}
	if err := validate.Check(info, f.config.FileConfig); err != nil {
		// Nothing was registered; the object just stays in the bucket.
		logCtx.Warn("Rejected intake object.", "error", err)
		return nil
	}

	if err := f.deepCheck(ctx, logCtx, e); err != nil {
		logCtx.Warn("Intake object is not a readable PDF, skipping.", "error", err)
		return nil
	}

	fileRef := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	exists, jobID, err := f.registry.ExistsForFile(ctx, fileRef)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if exists {
		logCtx.Info("Duplicate object detected. Skipping.", "existingJobId", jobID)
		return nil
	}

	owner := attrs.Metadata["owner"]
	if owner == "" {
		owner = f.config.DefaultOwner
	}
	query := attrs.Metadata["query"]
	if query == "" {
		query = models.DefaultQuery
	}

	jobID, err = f.registry.Create(ctx, registry.CreateParams{
		Owner:    owner,
		FileRef:  fileRef,
		FileName: info.Name,
		Query:    query,
	})
	if err != nil {
		logCtx.Error("Failed to register job", "error", err)
		return err
	}
	logCtx = logCtx.With("jobId", jobID)
	logCtx.Info("Job registered.")

	err = f.trigger.Trigger(ctx, trigger.Request{
		JobID:          jobID,
		FileRef:        fileRef,
		Owner:          owner,
		Query:          query,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		// The job row stays pending; an operator sees it in the orphan
		// report. No compensating delete.
		logCtx.Error("Failed to trigger analysis, job stays pending.", "error", err)
		return err
	}

	logCtx.Info("Hand-off to analysis service complete.")
	return nil
}

// deepCheck downloads the object to a temp file and parses it as a PDF.
func (f *IntakeFunction) deepCheck(ctx context.Context, logCtx *slog.Logger, e GCSEvent) error {
	tempDir, err := os.MkdirTemp("", "docflow-intake-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, "source.pdf")
	if err := f.streamObject(ctx, e.Bucket, e.Name, localPath); err != nil {
		return err
	}

	pageCount, err := validate.DeepCheck(localPath)
	if err != nil {
		return err
	}
	logCtx.Info("Intake object validated.", "pageCount", pageCount)
	return nil
}

func (f *IntakeFunction) streamObject(ctx context.Context, bucket, object, destPath string) error {
	gcsReader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}
