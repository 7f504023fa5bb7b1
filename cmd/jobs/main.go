// Command jobs prints a live view of a user's analysis jobs. Every server
// push redraws the list from the fresh snapshot; there is no polling and no
// client-side merging of job fields.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/docuquery/docflow/internal/gcp"
	"github.com/docuquery/docflow/internal/models"
	"github.com/docuquery/docflow/internal/project"
	"github.com/docuquery/docflow/internal/registry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	owner := flag.String("owner", gcp.GetEnv("DOCFLOW_USER", ""), "user whose jobs to watch")
	jobID := flag.String("job", "", "watch a single job by identifier")
	flag.Parse()

	if err := run(*owner, *jobID); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(owner, jobID string) error {
	if owner == "" {
		return fmt.Errorf("-owner (or DOCFLOW_USER) is required")
	}
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return err
	}
	reg, err := registry.New(firestoreClient, gcp.GetEnv("FIRESTORE_COLLECTION", "jobs"))
	if err != nil {
		return err
	}

	fmt.Println("loading...")
	for snap := range reg.Watch(ctx, owner) {
		if snap.Err != nil {
			// The view degrades but keeps whatever was shown last.
			fmt.Fprintln(os.Stderr, "subscription degraded:", snap.Err)
			continue
		}
		if jobID != "" {
			printOne(snap.Jobs, jobID)
			continue
		}
		printAll(snap.Jobs)
	}
	return ctx.Err()
}

func printOne(jobs []models.Job, jobID string) {
	job, ok := project.Select(jobs, jobID)
	if !ok {
		// Right after submission the row may not have been delivered yet.
		fmt.Printf("%s\tnot yet available\n", jobID)
		return
	}
	fmt.Printf("%s\t%s\t%s\n", job.ID, job.Status, job.FileName)
	if job.Status == models.StatusCompleted {
		fmt.Println(job.Result)
	}
}

func printAll(jobs []models.Job) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tCREATED\tFILE\tQUERY")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.Status, job.CreatedAt.Format("2006-01-02 15:04:05"), job.FileName, job.Query)
	}
	w.Flush()
}
