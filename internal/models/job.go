package models

import "time"

// JobStatus is the lifecycle state of an analysis job. It is written only by
// the remote analysis service after the job row is created; clients treat it
// as read-only.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultQuery is substituted when the user submits a document without an
// instruction of their own.
const DefaultQuery = "Analyze financial trends and risks"

// Job is the main record for a document analysis job in Firestore.
// Every field except Status and Result is immutable after creation, and
// those two belong to the analysis service alone.
type Job struct {
	ID        string    `firestore:"-"`
	Owner     string    `firestore:"owner"`
	FileRef   string    `firestore:"fileRef"`
	FileName  string    `firestore:"fileName"`
	Query     string    `firestore:"query"`
	Status    JobStatus `firestore:"status"`
	Result    string    `firestore:"result,omitempty"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
}
