package evaluation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
)

// PerformanceMetrics summarizes answer quality over a reporting window.
type PerformanceMetrics struct {
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgQualityScore   float64 `json:"avg_quality_score"`
	TotalQueries      int     `json:"total_queries"`
	SuccessRate       float64 `json:"success_rate"`
	UserSatisfaction  float64 `json:"user_satisfaction"`
	RetrievalAccuracy float64 `json:"retrieval_accuracy"`
}

// SystemStats is the all-time snapshot behind the admin dashboard.
type SystemStats struct {
	TotalUsers        int     `json:"total_users"`
	TotalDocuments    int     `json:"total_documents"`
	TotalQueries      int     `json:"total_queries"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgConfidence     float64 `json:"avg_confidence_score"`
	VectorChunks      int     `json:"vector_chunks"`
	FeedbackCount     int     `json:"feedback_count"`
	AvgRating         float64 `json:"avg_rating"`
}

// MetricsService aggregates operational metrics from the repositories.
type MetricsService struct {
	repos  *repositories.Repositories
	logger *zap.Logger
}

// NewMetricsService creates a metrics service.
func NewMetricsService(repos *repositories.Repositories, logger *zap.Logger) *MetricsService {
	return &MetricsService{
		repos:  repos,
		logger: logger,
	}
}

// Performance reports quality metrics over the trailing window.
// Non-positive days falls back to seven.
func (s *MetricsService) Performance(ctx context.Context, days int) (*PerformanceMetrics, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	queryMetrics, err := s.repos.QueryLogs.GetMetrics(ctx, since)
	if err != nil {
		return nil, services.WrapInternal("failed to load query metrics", err)
	}
	feedback, err := s.repos.Feedback.GetSummary(ctx, since)
	if err != nil {
		return nil, services.WrapInternal("failed to load feedback summary", err)
	}

	metrics := &PerformanceMetrics{
		AvgResponseTimeMs: queryMetrics.AvgResponseTimeMs,
		AvgQualityScore:   queryMetrics.AvgConfidence,
		TotalQueries:      queryMetrics.TotalQueries,
		UserSatisfaction:  feedback.AvgRating,
	}
	if queryMetrics.TotalQueries > 0 {
		total := float64(queryMetrics.TotalQueries)
		metrics.SuccessRate = float64(queryMetrics.TotalQueries-queryMetrics.FailedQueries) / total
		metrics.RetrievalAccuracy = float64(queryMetrics.HighConfidence) / total
	}
	return metrics, nil
}

// SystemStats reports all-time totals.
func (s *MetricsService) SystemStats(ctx context.Context) (*SystemStats, error) {
	users, err := s.repos.Users.Count(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to count users", err)
	}
	docStats, err := s.repos.Documents.GetStats(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to load document stats", err)
	}
	queryMetrics, err := s.repos.QueryLogs.GetMetrics(ctx, time.Time{})
	if err != nil {
		return nil, services.WrapInternal("failed to load query metrics", err)
	}
	chunks, err := s.repos.Chunks.Count(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to count vector chunks", err)
	}
	feedback, err := s.repos.Feedback.GetSummary(ctx, time.Time{})
	if err != nil {
		return nil, services.WrapInternal("failed to load feedback summary", err)
	}

	return &SystemStats{
		TotalUsers:        users,
		TotalDocuments:    docStats.TotalDocuments,
		TotalQueries:      queryMetrics.TotalQueries,
		AvgResponseTimeMs: queryMetrics.AvgResponseTimeMs,
		AvgConfidence:     queryMetrics.AvgConfidence,
		VectorChunks:      chunks,
		FeedbackCount:     feedback.Count,
		AvgRating:         feedback.AvgRating,
	}, nil
}
