package models

// IngestResult is the outcome of one upsert invocation.
// DocumentsProcessed counts chunks written and is 0 whenever Success is false.
type IngestResult struct {
	Success            bool   `json:"success"`
	DocumentsProcessed int    `json:"documents_processed"`
	ChunksCreated      int    `json:"chunks_created,omitempty"`
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	Collection         string `json:"collection,omitempty"`
	Error              string `json:"error,omitempty"`
}

// CorpusStats aggregates a full scan of the collection.
// Callers must check Error before trusting the counts.
type CorpusStats struct {
	TotalFiles  int            `json:"total_files"`
	TotalChunks int            `json:"total_chunks"`
	ByType      map[string]int `json:"by_type"`
	Samples     []string       `json:"samples"`
	Error       string         `json:"error,omitempty"`
}

// FileOutcome reports the ingestion of one file in a directory run.
type FileOutcome struct {
	Path   string        `json:"path"`
	Chunks int           `json:"chunks"`
	Result *IngestResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// DirectoryResult summarizes a directory ingestion.
type DirectoryResult struct {
	Files     int            `json:"files"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Chunks    int            `json:"chunks"`
	Outcomes  []*FileOutcome `json:"outcomes"`
}
