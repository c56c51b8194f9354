package domain

// PieceStatus enumerates puzzle piece lifecycle states.
type PieceStatus string

const (
	PieceStatusPending    PieceStatus = "pending"
	PieceStatusGenerating PieceStatus = "generating"
	PieceStatusComplete   PieceStatus = "complete"
	PieceStatusError      PieceStatus = "error"
)

// Piece tracks one subject's generation job end-to-end within a batch.
// Failures are recorded on the piece, never dropped from the batch.
type Piece struct {
	ID        int         `json:"id"`
	SubjectID int         `json:"subject_id"`
	Prompt    string      `json:"prompt"`
	Status    PieceStatus `json:"status"`
	JobID     string      `json:"job_id,omitempty"`
	ImageURL  string      `json:"image_url,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// BatchProgress reports how far a batch run has advanced. Current is the
// 1-based index of the piece being processed.
type BatchProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// BatchStatus enumerates batch run lifecycle states.
type BatchStatus string

const (
	BatchStatusRunning  BatchStatus = "running"
	BatchStatusComplete BatchStatus = "complete"
	BatchStatusFailed   BatchStatus = "failed"
)

// Batch is one multi-subject generation run exposed to callers.
type Batch struct {
	ID       string        `json:"id"`
	Status   BatchStatus   `json:"status"`
	Progress BatchProgress `json:"progress"`
	Pieces   []Piece       `json:"pieces"`
	Error    string        `json:"error,omitempty"`
}
