// Command orphan-report lists jobs that were registered but never claimed by
// the analysis service: rows still pending past a grace period. The report
// also checks whether each job's stored object is still present. It is
// strictly read-only; whether and how orphans get cleaned up is an operator
// decision, not this tool's.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/docuquery/docflow/internal/gcp"
	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/registry"
	"github.com/docuquery/docflow/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	grace := flag.Duration("grace", time.Hour, "how long a job may stay pending before it counts as orphaned")
	flag.Parse()

	if err := run(*grace); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(grace time.Duration) error {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	ctx := context.Background()
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return err
	}
	reg, err := registry.New(firestoreClient, gcp.GetEnv("FIRESTORE_COLLECTION", "jobs"))
	if err != nil {
		return err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Storage client: %w", err)
	}

	cutoff := time.Now().Add(-grace)
	orphans, err := reg.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Printf("no jobs pending since before %s\n", cutoff.Format(time.RFC3339))
		return nil
	}

	objectState := checkObjects(ctx, storageClient, orphans)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tOWNER\tCREATED\tPENDING FOR\tOBJECT\tFILE")
	for _, job := range orphans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID,
			job.Owner,
			job.CreatedAt.Format(time.RFC3339),
			time.Since(job.CreatedAt).Round(time.Minute),
			objectState[job.ID],
			job.FileName,
		)
	}
	w.Flush()
	fmt.Printf("%d orphan candidate(s)\n", len(orphans))
	return nil
}

// checkObjects verifies each orphan's stored object concurrently. A missing
// object means even a manual re-trigger cannot save the job.
func checkObjects(ctx context.Context, storageClient *storage.Client, jobs []models.Job) map[string]string {
	var mu sync.Mutex
	state := make(map[string]string, len(jobs))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, job := range jobs {
		eg.Go(func() error {
			bucket, object, err := store.ParseRef(job.FileRef)
			var label string
			switch {
			case err != nil:
				label = "bad ref"
			default:
				_, err := storageClient.Bucket(bucket).Object(object).Attrs(gctx)
				switch {
				case err == nil:
					label = "present"
				case errors.Is(err, storage.ErrObjectNotExist):
					label = "missing"
				default:
					label = "unknown"
				}
			}
			mu.Lock()
			state[job.ID] = label
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; Wait just fences the goroutines.
	_ = eg.Wait()
	return state
}
