// Package trigger hands a registered job to the remote analysis service.
// The hand-off is fire-and-forget: the service reports progress by mutating
// the job row, never through this call's response.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/docuquery/docflow/internal/models"
)

// Request identifies the work the analysis service should pick up.
type Request struct {
	JobID   string
	FileRef string
	Owner   string
	Query   string

	// IdempotencyKey is generated once per submission so a repeated
	// hand-off for the same submission can be deduplicated server-side.
	IdempotencyKey string
}

// Error is a non-success response from the analysis service. StatusCode is 0
// when the request never got a response at all.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("analysis trigger failed: %s", e.Body)
	}
	return fmt.Sprintf("analysis trigger returned %d: %s", e.StatusCode, e.Body)
}

// Client is anything that can hand a job to the analysis service.
type Client interface {
	Trigger(ctx context.Context, req Request) error
}

const maxResponseBody = 4 * 1024

// Webhook triggers analysis with a single HTTP POST to a fixed endpoint.
// One attempt only: the caller treats any failure as a failure of the whole
// submission, so retrying here would just hide the outcome.
type Webhook struct {
	endpoint   string
	httpClient *http.Client
}

func NewWebhook(endpoint string, httpClient *http.Client) (*Webhook, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint must be provided to create a webhook trigger")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Webhook{endpoint: endpoint, httpClient: httpClient}, nil
}

func (w *Webhook) Trigger(ctx context.Context, req Request) error {
	payload := models.AnalysisTriggerPayload{
		ChatID: req.JobID,
		FileID: req.FileRef,
		UserID: req.Owner,
		Query:  req.Query,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return &Error{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
