package model

// IngestJob is the queued form of a background ingestion. Data carries the
// PDF bytes for pdf sources and is empty for url sources.
type IngestJob struct {
	SessionID  string `json:"session_id"`
	SourceKind string `json:"source_kind"`
	SourceRef  string `json:"source_ref"`
	Data       []byte `json:"data,omitempty"`
}
