package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ABTest represents an experiment comparing two pipeline configurations.
// Assignment is deterministic: hash(test name + user ID) mod 100 against
// the traffic split, so a user always lands in the same variant.
type ABTest struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Description       string          `json:"description" db:"description"`
	ConfigA           json.RawMessage `json:"config_a" db:"config_a"`
	ConfigB           json.RawMessage `json:"config_b" db:"config_b"`
	TrafficSplit      float64         `json:"traffic_split" db:"traffic_split"` // Fraction routed to treatment (B)
	SignificanceLevel float64         `json:"significance_level" db:"significance_level"`
	MinSampleSize     int             `json:"min_sample_size" db:"min_sample_size"` // Per variant
	IsActive          bool            `json:"is_active" db:"is_active"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}

// TableName returns the table name for the ABTest model
func (ABTest) TableName() string {
	return "ab_tests"
}

// NewABTest creates a new ABTest instance
func NewABTest(name, description string, configA, configB interface{}, trafficSplit, significance float64, minSamples int) (*ABTest, error) {
	a, err := json.Marshal(configA)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(configB)
	if err != nil {
		return nil, err
	}
	return &ABTest{
		ID:                uuid.New(),
		Name:              name,
		Description:       description,
		ConfigA:           a,
		ConfigB:           b,
		TrafficSplit:      trafficSplit,
		SignificanceLevel: significance,
		MinSampleSize:     minSamples,
		IsActive:          true,
		CreatedAt:         time.Now(),
	}, nil
}

// End deactivates the test
func (t *ABTest) End() {
	t.IsActive = false
	now := time.Now()
	t.EndedAt = &now
}

// ABTestResult is one observation recorded for a variant
type ABTestResult struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TestID          uuid.UUID `json:"test_id" db:"test_id"`
	Variant         string    `json:"variant" db:"variant"` // "A" or "B"
	ResponseTimeMs  int       `json:"response_time_ms" db:"response_time_ms"`
	ConfidenceScore float64   `json:"confidence_score" db:"confidence_score"`
	Rating          *int      `json:"rating,omitempty" db:"rating"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ABTestResult model
func (ABTestResult) TableName() string {
	return "ab_test_results"
}

// NewABTestResult creates a new ABTestResult instance
func NewABTestResult(testID uuid.UUID, variant string, responseTimeMs int, confidence float64, rating *int) *ABTestResult {
	return &ABTestResult{
		ID:              uuid.New(),
		TestID:          testID,
		Variant:         variant,
		ResponseTimeMs:  responseTimeMs,
		ConfidenceScore: confidence,
		Rating:          rating,
		CreatedAt:       time.Now(),
	}
}
