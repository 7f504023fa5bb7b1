package models

// These structs define the JSON payloads exchanged with the remote analysis
// service. The wire field names are fixed by that service's intake contract
// and must not change.

// AnalysisTriggerPayload is the body of the request that hands a registered
// job to the analysis service.
type AnalysisTriggerPayload struct {
	ChatID string `json:"chat_id"`
	FileID string `json:"file_id"`
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}
