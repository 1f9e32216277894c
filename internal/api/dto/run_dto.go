package dto

// StartRunRequest payload. Every field is optional.
type StartRunRequest struct {
	Kind      string  `json:"kind"`
	TrackerID int64   `json:"tracker_id"`
	IssueIDs  []int64 `json:"issue_ids"`
	Workers   int     `json:"workers"`
}

// StartRunResponse is returned once a run is accepted.
type StartRunResponse struct {
	RunID     string `json:"run_id"`
	StartedBy string `json:"started_by,omitempty"`
}
