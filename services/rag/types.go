package rag

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NathanYKo/RAG-Document-System/models"
)

// RetrievalMethodSemantic marks chunks found by vector similarity search.
// Kept as a field so hybrid retrieval can be added without a schema change.
const RetrievalMethodSemantic = "semantic"

// ContextChunk is one retrieved piece of document text as it moves through
// the pipeline. Stages never mutate a chunk in place; they build a new one
// with WithScore or WithContent, so a slice handed to a stage is safe to
// keep.
type ContextChunk struct {
	Content         string               `json:"content"`
	SourceID        string               `json:"source_id"`
	Metadata        models.ChunkMetadata `json:"metadata"`
	RelevanceScore  float64              `json:"relevance_score"`
	RetrievalMethod string               `json:"retrieval_method"`
}

// WithScore returns a copy of the chunk carrying the given relevance score
func (c ContextChunk) WithScore(score float64) ContextChunk {
	c.RelevanceScore = score
	return c
}

// WithContent returns a copy of the chunk carrying the given content
func (c ContextChunk) WithContent(content string) ContextChunk {
	c.Content = content
	return c
}

// FilterParams narrows retrieval results before ranking. The recognized
// keys are typed; anything else a client sends lands in Extra and is
// ignored by the pipeline, so new clients can talk to old servers.
type FilterParams struct {
	// FileType keeps only chunks whose document matches exactly
	FileType string `json:"file_type,omitempty"`

	// MinScore keeps only chunks at or above this relevance score
	MinScore *float64 `json:"min_score,omitempty"`

	// Extra holds unrecognized filter keys
	Extra map[string]any `json:"-"`
}

// UnmarshalJSON accepts an open mapping, splitting recognized keys from
// the rest.
func (f *FilterParams) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["file_type"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("filter_params: file_type must be a string")
		}
		f.FileType = s
		delete(raw, "file_type")
	}
	if v, ok := raw["min_score"]; ok {
		n, ok := v.(float64)
		if !ok {
			return fmt.Errorf("filter_params: min_score must be a number")
		}
		f.MinScore = &n
		delete(raw, "min_score")
	}
	if len(raw) > 0 {
		f.Extra = raw
	}
	return nil
}

// MarshalJSON restores the open mapping shape, recognized keys included.
// Query logs store filter params in this form.
func (f FilterParams) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+2)
	for k, v := range f.Extra {
		out[k] = v
	}
	if f.FileType != "" {
		out["file_type"] = f.FileType
	}
	if f.MinScore != nil {
		out["min_score"] = *f.MinScore
	}
	return json.Marshal(out)
}

// QueryRequest is a question against the knowledge base
type QueryRequest struct {
	// Query is the user's question
	Query string `json:"query" validate:"required,min=1,max=1000"`

	// MaxResults caps how many sources back the answer (default 5)
	MaxResults int `json:"max_results" validate:"omitempty,min=1,max=20"`

	// IncludeMetadata controls whether sources carry chunk metadata.
	// Omitted means yes.
	IncludeMetadata *bool `json:"include_metadata,omitempty"`

	// FilterParams optionally narrows which chunks are considered
	FilterParams *FilterParams `json:"filter_params,omitempty"`
}

// Normalize fills defaults for omitted fields
func (r *QueryRequest) Normalize() {
	if r.MaxResults == 0 {
		r.MaxResults = 5
	}
}

// IncludesMetadata reports whether sources should carry metadata.
// Requests include it unless they explicitly opt out.
func (r *QueryRequest) IncludesMetadata() bool {
	return r.IncludeMetadata == nil || *r.IncludeMetadata
}

// Source is the provenance of one piece of a generated answer
type Source struct {
	ID             string                `json:"id"`
	ContentPreview string                `json:"content_preview"`
	Metadata       *models.ChunkMetadata `json:"metadata,omitempty"`
	RelevanceScore float64               `json:"relevance_score"`
}

// QueryResponse is the answer to a knowledge base query
type QueryResponse struct {
	Query           string    `json:"query"`
	Answer          string    `json:"answer"`
	Sources         []Source  `json:"sources"`
	ConfidenceScore float64   `json:"confidence_score"`
	ProcessingTime  float64   `json:"processing_time"`
	SourcesCount    int       `json:"sources_count"`
	Timestamp       time.Time `json:"timestamp"`

	// TokensUsed feeds query log accounting, not the API response
	TokensUsed int `json:"-"`
}
