package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackType categorizes what a rating is about
type FeedbackType string

const (
	FeedbackTypeGeneral   FeedbackType = "general"
	FeedbackTypeAccuracy  FeedbackType = "accuracy"
	FeedbackTypeRelevance FeedbackType = "relevance"
	FeedbackTypeSpeed     FeedbackType = "speed"
)

// Feedback is a user rating of one answered query
type Feedback struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	QueryLogID           uuid.UUID    `json:"query_log_id" db:"query_log_id"`
	UserID               uuid.UUID    `json:"user_id" db:"user_id"`
	Rating               int          `json:"rating" db:"rating"` // 1..5
	FeedbackType         FeedbackType `json:"feedback_type" db:"feedback_type"`
	FeedbackText         *string      `json:"feedback_text,omitempty" db:"feedback_text"`
	WasHelpful           *bool        `json:"was_helpful,omitempty" db:"was_helpful"`
	SuggestedImprovement *string      `json:"suggested_improvement,omitempty" db:"suggested_improvement"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Feedback model
func (Feedback) TableName() string {
	return "feedback"
}

// NewFeedback creates a general-type Feedback; callers set the optional
// fields on the returned value
func NewFeedback(queryLogID, userID uuid.UUID, rating int, text *string) *Feedback {
	return &Feedback{
		ID:           uuid.New(),
		QueryLogID:   queryLogID,
		UserID:       userID,
		Rating:       rating,
		FeedbackType: FeedbackTypeGeneral,
		FeedbackText: text,
		CreatedAt:    time.Now(),
	}
}
