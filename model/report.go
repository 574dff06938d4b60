package model

import "github.com/google/uuid"

// IndexStatus is the outcome of indexing one document.
type IndexStatus string

const (
	IndexStatusSuccess IndexStatus = "success"
	IndexStatusEmpty   IndexStatus = "empty"
	IndexStatusFailed  IndexStatus = "failed"
)

// IndexReport summarizes the indexing of a single document.
type IndexReport struct {
	Status         IndexStatus `json:"status"`
	Document       string      `json:"document"`
	DocumentRID    uuid.UUID   `json:"document_rid"`
	Chunks         int         `json:"chunks"`
	TotalDocuments int         `json:"total_documents"`
}

// IngestResult is the per-document outcome of a batch ingestion.
type IngestResult struct {
	Document *Document
	Report   *IndexReport
	Err      error
}

// IndexStats describes the content of a vector index.
type IndexStats struct {
	Chunks    int `json:"chunks"`
	Documents int `json:"documents"`
	Dimension int `json:"dimension"`
}
