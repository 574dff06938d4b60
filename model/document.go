package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ExtractionQuality tells whether the text extraction of a document was clean.
type ExtractionQuality string

const (
	QualityClean    ExtractionQuality = "clean"
	QualityDegraded ExtractionQuality = "degraded"
)

// Document represents a source document handed over by the extraction layer
type Document struct {
	ID        int64             `json:"id,omitempty"`
	RID       uuid.UUID         `json:"rid"`
	Title     string            `json:"title"`
	Source    string            `json:"source,omitempty"`
	Content   string            `json:"content,omitempty" db:"-"` // Only used for processing, never stored
	Quality   ExtractionQuality `json:"quality,omitempty"`
	Metadata  Metadata          `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewDocument creates a document with a fresh RID.
func NewDocument(source string, content string, quality ExtractionQuality) *Document {
	if quality == "" {
		quality = QualityClean
	}
	return &Document{
		RID:      uuid.New(),
		Title:    source,
		Source:   source,
		Content:  content,
		Quality:  quality,
		Metadata: Metadata{},
	}
}

// DocumentRIDForPath derives the RID of a file document from its absolute path.
// Indexing the same file again yields the same RID and replaces the earlier chunks.
func DocumentRIDForPath(filePath string) uuid.UUID {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		absPath = filepath.Clean(filePath)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(absPath)))
}

// NewDocumentFromFile reads a text file and creates a Document with its content.
// The title defaults to the filename without extension, the source to the file path.
// The RID is derived from the path, see DocumentRIDForPath.
func NewDocumentFromFile(filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	return &Document{
		RID:      DocumentRIDForPath(filePath),
		Title:    title,
		Source:   filePath,
		Content:  string(content),
		Quality:  QualityClean,
		Metadata: metadata,
	}, nil
}

// Name returns the source name, falling back to the title.
func (d *Document) Name() string {
	if d.Source != "" {
		return d.Source
	}
	return d.Title
}
