package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FileType identifies the format a document was uploaded in
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
)

// FileTypeFromFilename maps a filename extension onto a FileType.
// Returns false when the extension is not supported.
func FileTypeFromFilename(filename string) (FileType, bool) {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] != '.' {
			continue
		}
		switch filename[i+1:] {
		case "pdf", "PDF":
			return FileTypePDF, true
		case "docx", "DOCX":
			return FileTypeDOCX, true
		case "txt", "TXT":
			return FileTypeTXT, true
		}
		return "", false
	}
	return "", false
}

// DocumentStatus represents the processing status of an uploaded document
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// DocumentMetadata records text measurements taken during processing
type DocumentMetadata struct {
	OriginalTextLength  int       `json:"original_text_length"`
	CleanedTextLength   int       `json:"cleaned_text_length"`
	ProcessingTimestamp time.Time `json:"processing_timestamp"`
}

// Document represents an uploaded file and its processing state
type Document struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	OwnerID      uuid.UUID         `json:"owner_id" db:"owner_id"`
	Filename     string            `json:"filename" db:"filename"`
	ContentType  string            `json:"content_type" db:"content_type"`
	FileType     FileType          `json:"file_type" db:"file_type"`
	FileSize     int64             `json:"file_size" db:"file_size"`
	Status       DocumentStatus    `json:"status" db:"status"`
	ChunkCount   int               `json:"chunk_count" db:"chunk_count"`
	ChunkSize    int               `json:"chunk_size" db:"chunk_size"`
	ChunkOverlap int               `json:"chunk_overlap" db:"chunk_overlap"`
	DocMetadata  *DocumentMetadata `json:"doc_metadata,omitempty" db:"doc_metadata"`
	Error        *string           `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "documents"
}

// NewDocument creates a new Document instance in the processing state
func NewDocument(ownerID uuid.UUID, filename, contentType string, fileType FileType, fileSize int64, chunkSize, chunkOverlap int) *Document {
	now := time.Now()
	return &Document{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Filename:     filename,
		ContentType:  contentType,
		FileType:     fileType,
		FileSize:     fileSize,
		Status:       DocumentStatusProcessing,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// MarkAsCompleted records successful ingestion
func (d *Document) MarkAsCompleted(chunkCount int, meta *DocumentMetadata) {
	now := time.Now()
	d.Status = DocumentStatusCompleted
	d.ChunkCount = chunkCount
	d.DocMetadata = meta
	d.ProcessedAt = &now
	d.UpdatedAt = now
}

// MarkAsFailed records an ingestion failure
func (d *Document) MarkAsFailed(reason string) {
	d.Status = DocumentStatusFailed
	d.Error = &reason
	d.UpdatedAt = time.Now()
}

// ChunkMetadata carries the provenance of a chunk through retrieval and
// into answer prompts. Extra holds any uploader-supplied fields that do
// not map onto the typed ones.
type ChunkMetadata struct {
	DocumentID uuid.UUID         `json:"document_id"`
	Filename   string            `json:"filename"`
	FileType   FileType          `json:"file_type"`
	ChunkIndex int               `json:"chunk_index"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// DocumentChunk is a contiguous slice of document text with its embedding
type DocumentChunk struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	DocumentID uuid.UUID     `json:"document_id" db:"document_id"`
	ChunkIndex int           `json:"chunk_index" db:"chunk_index"`
	Content    string        `json:"content" db:"content"`
	Embedding  []float32     `json:"-" db:"embedding"`
	Metadata   ChunkMetadata `json:"metadata" db:"metadata"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the DocumentChunk model
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// NewDocumentChunk creates a chunk for the given document position
func NewDocumentChunk(doc *Document, index int, content string, extra map[string]string) *DocumentChunk {
	return &DocumentChunk{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		ChunkIndex: index,
		Content:    content,
		Metadata: ChunkMetadata{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			FileType:   doc.FileType,
			ChunkIndex: index,
			Extra:      extra,
		},
		CreatedAt: time.Now(),
	}
}

// SourceID returns the stable identifier cited in generated answers
func (c *DocumentChunk) SourceID() string {
	return fmt.Sprintf("%s_%d", c.DocumentID, c.ChunkIndex)
}
