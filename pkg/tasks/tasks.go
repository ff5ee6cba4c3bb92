// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask represents the data structure for a document ingestion job.
// Source bytes are staged in object storage before the task is enqueued,
// so the consumer never re-downloads anything.
type IngestTask struct {
	Fingerprint string `json:"fingerprint"`
	SourceType  string `json:"source_type"`
	SourceURL   string `json:"source_url,omitempty"`
	ObjectKey   string `json:"object_key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}
