package models

// Stage labels the client-visible phase of one submission. It is ephemeral
// presentation state owned by the orchestrator and is decoupled from the
// Job's Status field, which only the analysis service writes.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageUploading  Stage = "uploading"
	StageQueueing   Stage = "queueing"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Progress is a cosmetic pacing signal for one submission. Percent is
// monotonically non-decreasing within a submission and does not measure
// transferred bytes.
type Progress struct {
	Stage   Stage
	Percent int
	Message string
}
