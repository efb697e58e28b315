package consumer

import "time"

// IndexCompleteEvent is published after every handled module event, whether
// the module was indexed or abandoned.
type IndexCompleteEvent struct {
	ArtifactID string         `json:"artifact_id"`
	BatchID    string         `json:"batch_id,omitempty"`
	Artifact   string         `json:"artifact"`
	Module     string         `json:"module,omitempty"`
	Status     string         `json:"status"`
	Skipped    map[string]int `json:"skipped,omitempty"`
	Written    map[string]int `json:"written,omitempty"`
	Error      string         `json:"error,omitempty"`
	IndexedAt  time.Time      `json:"indexed_at"`
}
