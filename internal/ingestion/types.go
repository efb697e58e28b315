// Package ingestion defines the request/response types and Kafka event schema
// used to queue container entries for indexing.
package ingestion

// IngestRequest is the JSON body accepted by the ingestion endpoint. Container
// is resolved under the indexer's container root. When Entries is empty every
// entry the indexer's selectors claim is queued.
type IngestRequest struct {
	Container string   `json:"container"`
	Entries   []string `json:"entries,omitempty"`
}

// IngestResponse is returned once every event has been handed to Kafka.
type IngestResponse struct {
	BatchID   string `json:"batch_id"`
	Container string `json:"container"`
	Published int    `json:"published"`
	Status    string `json:"status"`
}

// ModuleEvent asks the indexer to index one container entry. Container is
// resolved relative to the configured container root.
type ModuleEvent struct {
	ArtifactID string `json:"artifact_id"`
	BatchID    string `json:"batch_id,omitempty"`
	Container  string `json:"container"`
	Entry      string `json:"entry"`
}
