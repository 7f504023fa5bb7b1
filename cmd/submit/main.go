// Command submit validates a local document, runs the submission sequence
// against the live backends, and follows the job until the analysis service
// reports a terminal status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"

	"github.com/docuquery/docflow/internal/gcp"
	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/project"
	"github.com/docuquery/docflow/internal/registry"
	"github.com/docuquery/docflow/internal/store"
	"github.com/docuquery/docflow/internal/submit"
	"github.com/docuquery/docflow/internal/trigger"
	"github.com/docuquery/docflow/internal/validate"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	filePath := flag.String("file", "", "path to the PDF to analyze")
	query := flag.String("query", "", "analysis instruction (optional)")
	owner := flag.String("owner", gcp.GetEnv("DOCFLOW_USER", ""), "submitting user identifier")
	follow := flag.Bool("follow", true, "wait for the analysis result")
	flag.Parse()

	if err := run(*filePath, *query, *owner, *follow); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(filePath, query, owner string, follow bool) error {
	if filePath == "" {
		return fmt.Errorf("-file is required")
	}
	if owner == "" {
		return fmt.Errorf("-owner (or DOCFLOW_USER) is required")
	}

	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("UPLOAD_BUCKET", "")
	if bucket == "" {
		return fmt.Errorf("UPLOAD_BUCKET environment variable must be set")
	}
	collection := gcp.GetEnv("FIRESTORE_COLLECTION", "jobs")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, content, err := openCandidate(filePath)
	if err != nil {
		return err
	}
	defer content.Close()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Storage client: %w", err)
	}
	objectStore, err := store.New(storageClient, bucket)
	if err != nil {
		return err
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return err
	}
	reg, err := registry.New(firestoreClient, collection)
	if err != nil {
		return err
	}
	trig, err := buildTrigger(ctx, projectID)
	if err != nil {
		return err
	}

	// Subscribe before submitting so the new row's first delivery is not
	// missed; until it arrives the job simply reads as not-yet-available.
	projector := project.New(reg.Watch(ctx, owner))

	orchestrator := submit.New(objectStore, reg, trig, validate.DefaultConfig(), printProgress)
	jobID, err := orchestrator.Run(ctx, submit.Submission{
		Owner:   owner,
		File:    info,
		Content: content,
		Query:   query,
	})
	if err != nil {
		var trigErr *submit.TriggerError
		if errors.As(err, &trigErr) && jobID != "" {
			fmt.Printf("job %s was registered but could not be handed to the analysis service; it will remain pending\n", jobID)
		}
		return err
	}
	fmt.Printf("job %s submitted\n", jobID)

	if !follow {
		return nil
	}

	fmt.Println("waiting for analysis to finish...")
	job, err := projector.WaitFor(ctx, jobID, func(j models.Job) bool {
		return j.Status.Terminal()
	})
	if err != nil {
		return fmt.Errorf("lost sight of job %s: %w", jobID, err)
	}

	switch job.Status {
	case models.StatusCompleted:
		fmt.Println(job.Result)
		return nil
	case models.StatusFailed:
		return fmt.Errorf("analysis of %s failed", job.FileName)
	default:
		return fmt.Errorf("job %s ended in unexpected status %q", job.ID, job.Status)
	}
}

// openCandidate stats the file and runs the local pre-flight checks,
// including the PDF parse check, before anything touches the network.
func openCandidate(filePath string) (validate.FileInfo, *os.File, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		return validate.FileInfo{}, nil, fmt.Errorf("cannot read %s: %w", filePath, err)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(filePath))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	info := validate.FileInfo{
		Name:      filepath.Base(filePath),
		SizeBytes: stat.Size(),
		MediaType: mediaType,
	}

	if err := validate.Check(info, validate.DefaultConfig()); err != nil {
		return validate.FileInfo{}, nil, err
	}
	pageCount, err := validate.DeepCheck(filePath)
	if err != nil {
		return validate.FileInfo{}, nil, err
	}
	slog.Info("Document validated.", "fileName", info.Name, "pageCount", pageCount)

	f, err := os.Open(filePath)
	if err != nil {
		return validate.FileInfo{}, nil, fmt.Errorf("cannot open %s: %w", filePath, err)
	}
	return info, f, nil
}

// buildTrigger selects the analysis hand-off transport. The webhook is the
// default; TRIGGER_MODE=workflow switches to a Cloud Workflows execution for
// deployments where the analysis service runs inside the project.
func buildTrigger(ctx context.Context, projectID string) (trigger.Client, error) {
	if gcp.GetEnv("TRIGGER_MODE", "webhook") == "workflow" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		return trigger.NewWorkflow(executionsClient, trigger.WorkflowConfig{
			ProjectID:  projectID,
			Location:   gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
			WorkflowID: gcp.GetEnv("WORKFLOW_ID", "document-analysis"),
		})
	}

	endpoint := gcp.GetEnv("ANALYSIS_TRIGGER_URL", "")
	if endpoint == "" {
		return nil, fmt.Errorf("ANALYSIS_TRIGGER_URL environment variable must be set")
	}
	return trigger.NewWebhook(endpoint, http.DefaultClient)
}

func printProgress(p models.Progress) {
	fmt.Printf("[%3d%%] %-10s %s\n", p.Percent, p.Stage, p.Message)
}
