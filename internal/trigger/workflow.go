package trigger

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowConfig locates the Cloud Workflow that fronts the analysis service
// in deployments where it runs inside the same GCP project.
type WorkflowConfig struct {
	ProjectID  string
	Location   string
	WorkflowID string
}

// Workflow triggers analysis by creating one Cloud Workflows execution
// carrying the same payload the webhook variant sends.
type Workflow struct {
	executionsClient *executions.Client
	config           WorkflowConfig
}

func NewWorkflow(executionsClient *executions.Client, config WorkflowConfig) (*Workflow, error) {
	if config.ProjectID == "" || config.Location == "" || config.WorkflowID == "" {
		return nil, fmt.Errorf("projectID, location and workflowID must all be set for a workflow trigger")
	}
	return &Workflow{executionsClient: executionsClient, config: config}, nil
}

func (t *Workflow) Trigger(ctx context.Context, req Request) error {
	argument := map[string]any{
		"chat_id":         req.JobID,
		"file_id":         req.FileRef,
		"user_id":         req.Owner,
		"query":           req.Query,
		"idempotency_key": req.IdempotencyKey,
	}
	payloadBytes, err := json.Marshal(argument)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow argument: %w", err)
	}

	_, err = t.executionsClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s",
			t.config.ProjectID, t.config.Location, t.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		return &Error{Body: err.Error()}
	}
	return nil
}
