package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueryStatus tracks a query through the retrieval pipeline
type QueryStatus string

const (
	QueryStatusReceived   QueryStatus = "received"
	QueryStatusRetrieving QueryStatus = "retrieving"
	QueryStatusFiltering  QueryStatus = "filtering"
	QueryStatusReranking  QueryStatus = "reranking"
	QueryStatusPacking    QueryStatus = "packing"
	QueryStatusGenerating QueryStatus = "generating"
	QueryStatusDone       QueryStatus = "done"
	QueryStatusFailed     QueryStatus = "failed"
)

// QueryLog records one answered (or failed) question
type QueryLog struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	QueryText       string          `json:"query_text" db:"query_text"`
	ResponseText    string          `json:"response_text" db:"response_text"`
	Status          QueryStatus     `json:"status" db:"status"`
	ConfidenceScore float64         `json:"confidence_score" db:"confidence_score"`
	ResponseTimeMs  int             `json:"response_time_ms" db:"response_time_ms"`
	TokensUsed      int             `json:"tokens_used" db:"tokens_used"`
	MaxResults      int             `json:"max_results" db:"max_results"`
	FilterParams    json.RawMessage `json:"filter_params,omitempty" db:"filter_params"`
	Sources         json.RawMessage `json:"sources,omitempty" db:"sources"`
	ErrorMessage    *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the QueryLog model
func (QueryLog) TableName() string {
	return "query_logs"
}

// NewQueryLog creates a log entry for a freshly received query
func NewQueryLog(userID uuid.UUID, queryText string) *QueryLog {
	return &QueryLog{
		ID:        uuid.New(),
		UserID:    userID,
		QueryText: queryText,
		Status:    QueryStatusReceived,
		CreatedAt: time.Now(),
	}
}

// WithRequest records the retrieval parameters the caller asked for
func (q *QueryLog) WithRequest(maxResults int, filterParams interface{}) *QueryLog {
	q.MaxResults = maxResults
	if filterParams != nil {
		if data, err := json.Marshal(filterParams); err == nil {
			q.FilterParams = data
		}
	}
	return q
}

// MarkAsDone records the answer and its metrics
func (q *QueryLog) MarkAsDone(responseText string, confidence float64, responseTimeMs, tokensUsed int, sources interface{}) {
	q.Status = QueryStatusDone
	q.ResponseText = responseText
	q.ConfidenceScore = confidence
	q.ResponseTimeMs = responseTimeMs
	q.TokensUsed = tokensUsed
	if data, err := json.Marshal(sources); err == nil {
		q.Sources = data
	}
}

// MarkAsFailed records a pipeline failure
func (q *QueryLog) MarkAsFailed(reason string) {
	q.Status = QueryStatusFailed
	q.ErrorMessage = &reason
}
