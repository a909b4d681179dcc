package evaluation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/NathanYKo/RAG-Document-System/models"
	"github.com/NathanYKo/RAG-Document-System/repositories"
	"github.com/NathanYKo/RAG-Document-System/services"
)

// Variant labels. Control is the incumbent configuration.
const (
	VariantControl   = "A"
	VariantTreatment = "B"
)

// Statuses reported by Analyze.
const (
	StatusComplete         = "complete"
	StatusInconclusive     = "inconclusive"
	StatusInsufficientData = "insufficient_data"
)

// Recommendations reported by Analyze.
const (
	RecommendDeploy   = "deploy"
	RecommendNoChange = "no_change"
)

const (
	defaultTrafficSplit  = 0.5
	defaultSignificance  = 0.05
	minSamplesPerVariant = 30

	// Experimental design constants for the power-derived sample floor.
	detectableEffectSize = 0.2
	statisticalPower     = 0.8
)

// CreateTestRequest configures a new experiment. Omitted knobs take the
// defaults above.
type CreateTestRequest struct {
	Name              string      `json:"name" validate:"required,min=1,max=255"`
	Description       string      `json:"description" validate:"max=2000"`
	ConfigA           interface{} `json:"config_a"`
	ConfigB           interface{} `json:"config_b"`
	TrafficSplit      *float64    `json:"traffic_split,omitempty" validate:"omitempty,min=0.1,max=0.9"`
	SignificanceLevel *float64    `json:"significance_level,omitempty" validate:"omitempty,min=0.01,max=0.1"`
	MinSampleSize     *int        `json:"min_sample_size,omitempty" validate:"omitempty,min=30"`
}

// Analysis is the statistical readout of an experiment.
type Analysis struct {
	Status           string  `json:"status"`
	Message          string  `json:"message,omitempty"`
	ControlMean      float64 `json:"control_mean"`
	TreatmentMean    float64 `json:"treatment_mean"`
	LiftPercent      float64 `json:"lift_percent"`
	TStatistic       float64 `json:"t_statistic"`
	PValue           float64 `json:"p_value"`
	EffectSize       float64 `json:"effect_size"`
	ConfidenceLevel  float64 `json:"confidence_level"`
	ControlSamples   int     `json:"control_samples"`
	TreatmentSamples int     `json:"treatment_samples"`
	Recommendation   string  `json:"recommendation,omitempty"`
}

// ABTestService manages experiments: creation, deterministic variant
// assignment, outcome recording and statistical analysis.
type ABTestService struct {
	tests  repositories.ABTestRepository
	logger *zap.Logger
}

// NewABTestService creates an A/B test service.
func NewABTestService(tests repositories.ABTestRepository, logger *zap.Logger) *ABTestService {
	return &ABTestService{
		tests:  tests,
		logger: logger,
	}
}

// Create validates the experiment design and stores it. The minimum
// sample size is raised to whatever detecting a 0.2 standardized effect
// at the requested significance with 80% power requires.
func (s *ABTestService) Create(ctx context.Context, req CreateTestRequest) (*models.ABTest, error) {
	split := defaultTrafficSplit
	if req.TrafficSplit != nil {
		split = *req.TrafficSplit
	}
	if split < 0.1 || split > 0.9 {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"traffic_split must be between 0.1 and 0.9", nil)
	}

	alpha := defaultSignificance
	if req.SignificanceLevel != nil {
		alpha = *req.SignificanceLevel
	}
	if alpha < 0.01 || alpha > 0.1 {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"significance_level must be between 0.01 and 0.1", nil)
	}

	minSamples := minSamplesPerVariant
	if req.MinSampleSize != nil {
		minSamples = *req.MinSampleSize
	}
	if minSamples < minSamplesPerVariant {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("min_sample_size must be at least %d", minSamplesPerVariant), nil)
	}
	if required := requiredSampleSize(detectableEffectSize, statisticalPower, alpha); minSamples < required {
		minSamples = required
	}

	if _, err := s.tests.GetByName(ctx, req.Name); err == nil {
		return nil, services.NewDomainError(services.ErrorTypeConflict,
			fmt.Sprintf("A/B test %q already exists", req.Name), nil)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to check A/B test name", err)
	}

	test, err := models.NewABTest(req.Name, req.Description, req.ConfigA, req.ConfigB, split, alpha, minSamples)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid variant config", err)
	}
	if err := s.tests.Create(ctx, test); err != nil {
		return nil, services.WrapInternal("failed to create A/B test", err)
	}

	s.logger.Info("A/B test created",
		zap.String("name", test.Name),
		zap.Float64("traffic_split", test.TrafficSplit),
		zap.Int("min_sample_size", test.MinSampleSize))
	return test, nil
}

// List returns experiments newest first.
func (s *ABTestService) List(ctx context.Context, limit, offset int) ([]*models.ABTest, error) {
	tests, err := s.tests.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list A/B tests", err)
	}
	return tests, nil
}

// Get returns one experiment by name.
func (s *ABTestService) Get(ctx context.Context, name string) (*models.ABTest, error) {
	test, err := s.tests.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrABTestNotFound
		}
		return nil, services.WrapInternal("failed to load A/B test", err)
	}
	return test, nil
}

// Assign returns the caller's variant. Unknown or ended tests assign
// control, so rollout code can call this unconditionally.
func (s *ABTestService) Assign(ctx context.Context, name string, userID uuid.UUID) (string, error) {
	test, err := s.tests.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return VariantControl, nil
		}
		return "", services.WrapInternal("failed to load A/B test", err)
	}
	if !test.IsActive {
		return VariantControl, nil
	}
	return assignVariant(test, userID), nil
}

// RecordResult derives the caller's variant and stores one observation
// under it, returning the variant used.
func (s *ABTestService) RecordResult(ctx context.Context, name string, userID uuid.UUID, responseTimeMs int, confidence float64, rating *int) (string, error) {
	test, err := s.tests.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", services.ErrABTestNotFound
		}
		return "", services.WrapInternal("failed to load A/B test", err)
	}

	variant := assignVariant(test, userID)
	result := models.NewABTestResult(test.ID, variant, responseTimeMs, confidence, rating)
	if err := s.tests.RecordResult(ctx, result); err != nil {
		return "", services.WrapInternal("failed to record A/B test result", err)
	}
	return variant, nil
}

// Analyze runs Welch's t-test over the confidence outcomes of both
// variants and reports effect size and a deploy recommendation. Below 30
// samples in either variant the readout is insufficient_data.
func (s *ABTestService) Analyze(ctx context.Context, name string) (*Analysis, error) {
	test, err := s.tests.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrABTestNotFound
		}
		return nil, services.WrapInternal("failed to load A/B test", err)
	}

	results, err := s.tests.GetResults(ctx, test.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to load A/B test results", err)
	}

	var control, treatment []float64
	for _, r := range results {
		switch r.Variant {
		case VariantControl:
			control = append(control, r.ConfidenceScore)
		case VariantTreatment:
			treatment = append(treatment, r.ConfidenceScore)
		}
	}

	analysis := &Analysis{
		ControlSamples:   len(control),
		TreatmentSamples: len(treatment),
		ConfidenceLevel:  1 - test.SignificanceLevel,
	}
	if len(control) < minSamplesPerVariant || len(treatment) < minSamplesPerVariant {
		analysis.Status = StatusInsufficientData
		analysis.Message = fmt.Sprintf("need at least %d samples per variant", minSamplesPerVariant)
		return analysis, nil
	}

	meanC := stat.Mean(control, nil)
	meanT := stat.Mean(treatment, nil)
	varC := stat.Variance(control, nil)
	varT := stat.Variance(treatment, nil)
	nC := float64(len(control))
	nT := float64(len(treatment))

	// Welch's t-test: the variants are not assumed to share a variance.
	// Zero variance in both arms means every outcome was identical, which
	// is no evidence of a difference.
	tStat, pValue := 0.0, 1.0
	if seSq := varC/nC + varT/nT; seSq > 0 {
		tStat = (meanT - meanC) / math.Sqrt(seSq)
		df := seSq * seSq / (math.Pow(varT/nT, 2)/(nT-1) + math.Pow(varC/nC, 2)/(nC-1))
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		pValue = 2 * dist.CDF(-math.Abs(tStat))
	}

	var effectSize float64
	if pooled := math.Sqrt(((nC-1)*varC + (nT-1)*varT) / (nC + nT - 2)); pooled > 0 {
		effectSize = (meanT - meanC) / pooled
	}

	analysis.ControlMean = meanC
	analysis.TreatmentMean = meanT
	if meanC != 0 {
		analysis.LiftPercent = (meanT - meanC) / meanC * 100
	}
	analysis.TStatistic = tStat
	analysis.PValue = pValue
	analysis.EffectSize = effectSize

	significant := pValue < test.SignificanceLevel
	analysis.Status = StatusInconclusive
	analysis.Recommendation = RecommendNoChange
	if significant {
		analysis.Status = StatusComplete
		if meanT > meanC {
			analysis.Recommendation = RecommendDeploy
		}
	}
	return analysis, nil
}

// End deactivates an experiment. Ending twice is a no-op.
func (s *ABTestService) End(ctx context.Context, name string) (*models.ABTest, error) {
	test, err := s.tests.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrABTestNotFound
		}
		return nil, services.WrapInternal("failed to load A/B test", err)
	}
	if !test.IsActive {
		return test, nil
	}

	test.End()
	if err := s.tests.Update(ctx, test); err != nil {
		return nil, services.WrapInternal("failed to end A/B test", err)
	}
	s.logger.Info("A/B test ended", zap.String("name", test.Name))
	return test, nil
}

// assignVariant buckets a user deterministically, so the same user sees
// the same variant for the life of the test.
func assignVariant(test *models.ABTest, userID uuid.UUID) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s_%s", test.Name, userID)
	if h.Sum32()%100 < uint32(test.TrafficSplit*100) {
		return VariantTreatment
	}
	return VariantControl
}

// requiredSampleSize is the per-variant n needed to detect the given
// standardized effect at significance alpha with the given power.
func requiredSampleSize(effectSize, power, alpha float64) int {
	zAlpha := distuv.UnitNormal.Quantile(1 - alpha/2)
	zBeta := distuv.UnitNormal.Quantile(power)
	n := 2 * (zAlpha + zBeta) * (zAlpha + zBeta) / (effectSize * effectSize)
	return int(math.Ceil(n))
}
