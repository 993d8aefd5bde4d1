// Package anomaly scores sensor readings against historical baselines using
// classical statistics. The detector never persists anything; callers decide
// whether a classification becomes a stored anomaly record.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xilian/diagnostics-service/internal/models"
)

// stddevFloor avoids division by zero on flat baselines
const stddevFloor = 1e-9

// madConsistency scales MAD to be comparable with a standard deviation
// under a normal distribution
const madConsistency = 1.4826

// minBaselineSamples is the smallest sample a baseline is trusted from
const minBaselineSamples = 4

// ZThresholds are the |z| cutoffs between severities. Values below Medium
// are not considered anomalous at all.
type ZThresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultZThresholds returns the standard 2/3/4 sigma cutoffs
func DefaultZThresholds() ZThresholds {
	return ZThresholds{Medium: 2, High: 3, Critical: 4}
}

// Scorer is a pluggable scoring backend for the isolation_forest and custom
// algorithms. Implementations return a score in [0,1]; larger scores map
// monotonically to higher severities.
type Scorer interface {
	Score(current float64, baseline Baseline) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface
type ScorerFunc func(current float64, baseline Baseline) (float64, error)

// Score implements Scorer
func (f ScorerFunc) Score(current float64, baseline Baseline) (float64, error) {
	return f(current, baseline)
}

// Classification is the outcome of scoring a single value. A nil
// classification from Classify means the value is not anomalous.
type Classification struct {
	ExpectedValue float64
	Deviation     float64
	Score         float64
	Severity      models.Severity
}

// Detector classifies values against baselines. The zero-threshold fields
// are filled with defaults by NewDetector.
type Detector struct {
	zThresholds ZThresholds
	scorers     map[models.Algorithm]Scorer
}

// NewDetector creates a detector with the given z-score thresholds.
// Zero-valued thresholds fall back to the 2/3/4 defaults.
func NewDetector(thresholds ZThresholds) *Detector {
	if thresholds.Medium <= 0 || thresholds.High <= 0 || thresholds.Critical <= 0 {
		thresholds = DefaultZThresholds()
	}
	return &Detector{
		zThresholds: thresholds,
		scorers:     make(map[models.Algorithm]Scorer),
	}
}

// RegisterScorer installs the scoring backend for isolation_forest or
// custom classification. Registering nil removes the backend.
func (d *Detector) RegisterScorer(algorithm models.Algorithm, scorer Scorer) {
	if scorer == nil {
		delete(d.scorers, algorithm)
		return
	}
	d.scorers[algorithm] = scorer
}

// Classify scores a single value against a baseline. It returns nil when the
// value is within normal bounds for the chosen algorithm.
func (d *Detector) Classify(algorithm models.Algorithm, current float64, baseline Baseline) (*Classification, error) {
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return nil, fmt.Errorf("cannot classify non-finite value %v", current)
	}

	switch algorithm {
	case models.AlgorithmZScore:
		return d.classifyZScore(current, baseline), nil
	case models.AlgorithmIQR:
		return d.classifyIQR(current, baseline), nil
	case models.AlgorithmMAD:
		return d.classifyMAD(current, baseline), nil
	case models.AlgorithmIsolationForest, models.AlgorithmCustom:
		return d.classifyScored(algorithm, current, baseline)
	}
	return nil, fmt.Errorf("unknown algorithm %q", algorithm)
}

func (d *Detector) classifyZScore(current float64, baseline Baseline) *Classification {
	stddev := math.Max(baseline.StdDev, stddevFloor)
	z := (current - baseline.Mean) / stddev
	severity, ok := d.severityFromZ(math.Abs(z))
	if !ok {
		return nil
	}
	return &Classification{
		ExpectedValue: baseline.Mean,
		Deviation:     z,
		Score:         math.Min(math.Abs(z)/(d.zThresholds.Critical+2), 1),
		Severity:      severity,
	}
}

func (d *Detector) classifyMAD(current float64, baseline Baseline) *Classification {
	// Robust z-score: MAD replaces the standard deviation so a skewed
	// baseline does not mask genuine outliers.
	scale := math.Max(baseline.MAD*madConsistency, stddevFloor)
	z := (current - baseline.Median) / scale
	severity, ok := d.severityFromZ(math.Abs(z))
	if !ok {
		return nil
	}
	return &Classification{
		ExpectedValue: baseline.Median,
		Deviation:     z,
		Score:         math.Min(math.Abs(z)/(d.zThresholds.Critical+2), 1),
		Severity:      severity,
	}
}

func (d *Detector) severityFromZ(absZ float64) (models.Severity, bool) {
	t := d.zThresholds
	switch {
	case absZ < t.Medium:
		return "", false
	case absZ < t.High:
		return models.SeverityMedium, true
	case absZ <= t.Critical:
		return models.SeverityHigh, true
	default:
		return models.SeverityCritical, true
	}
}

func (d *Detector) classifyIQR(current float64, baseline Baseline) *Classification {
	iqr := baseline.IQR()
	if iqr <= 0 {
		return nil
	}

	mid := (baseline.Q1 + baseline.Q3) / 2
	var distance float64
	switch {
	case current < baseline.Q1:
		distance = baseline.Q1 - current
	case current > baseline.Q3:
		distance = current - baseline.Q3
	default:
		return nil
	}

	// Fences at 1.5x and 3x IQR beyond the quartiles
	multiple := distance / iqr
	if multiple < 1.5 {
		return nil
	}
	severity := models.SeverityMedium
	if multiple > 3 {
		severity = models.SeverityHigh
	}

	deviation := current - mid
	return &Classification{
		ExpectedValue: mid,
		Deviation:     deviation,
		Score:         math.Min(multiple/6, 1),
		Severity:      severity,
	}
}

func (d *Detector) classifyScored(algorithm models.Algorithm, current float64, baseline Baseline) (*Classification, error) {
	scorer, ok := d.scorers[algorithm]
	if !ok {
		return nil, fmt.Errorf("no scorer registered for algorithm %q", algorithm)
	}
	score, err := scorer.Score(current, baseline)
	if err != nil {
		return nil, fmt.Errorf("scorer for %q failed: %w", algorithm, err)
	}
	if score < 0 || score > 1 || math.IsNaN(score) {
		return nil, fmt.Errorf("scorer for %q returned score %v outside [0,1]", algorithm, score)
	}

	severity, ok := severityFromScore(score)
	if !ok {
		return nil, nil
	}
	return &Classification{
		ExpectedValue: baseline.Mean,
		Deviation:     current - baseline.Mean,
		Score:         score,
		Severity:      severity,
	}, nil
}

// severityFromScore maps a normalized [0,1] score onto severities.
// Scores below 0.5 are not anomalous.
func severityFromScore(score float64) (models.Severity, bool) {
	switch {
	case score < 0.5:
		return "", false
	case score < 0.7:
		return models.SeverityLow, true
	case score < 0.85:
		return models.SeverityMedium, true
	case score < 0.95:
		return models.SeverityHigh, true
	default:
		return models.SeverityCritical, true
	}
}

// Evaluate groups readings by metric, builds a baseline per metric, and
// classifies the most recent point of each. Readings whose quality is not
// good are excluded entirely: an uncertain or bad point would skew both the
// baseline and the classified value. Metrics with fewer than
// minBaselineSamples readings are skipped. The returned records carry fresh
// detection IDs but are not persisted here.
func (d *Detector) Evaluate(readings []models.SensorReading, algorithm models.Algorithm) ([]models.AnomalyRecord, error) {
	byMetric := make(map[string][]models.SensorReading)
	for _, r := range readings {
		if r.Quality != "" && r.Quality != models.QualityGood {
			continue
		}
		byMetric[r.MetricName] = append(byMetric[r.MetricName], r)
	}

	var records []models.AnomalyRecord
	for metric, points := range byMetric {
		if len(points) < minBaselineSamples {
			continue
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Timestamp.Before(points[j].Timestamp)
		})

		latest := points[len(points)-1]
		history := make([]float64, 0, len(points)-1)
		for _, p := range points[:len(points)-1] {
			history = append(history, p.Value)
		}
		baseline := BaselineFromValues(history)

		c, err := d.Classify(algorithm, latest.Value, baseline)
		if err != nil {
			return nil, fmt.Errorf("evaluating metric %q: %w", metric, err)
		}
		if c == nil {
			continue
		}

		records = append(records, models.AnomalyRecord{
			DetectionID:   uuid.New().String(),
			DeviceID:      latest.DeviceID,
			SensorID:      latest.SensorID,
			MetricName:    metric,
			Algorithm:     algorithm,
			CurrentValue:  latest.Value,
			ExpectedValue: c.ExpectedValue,
			Deviation:     c.Deviation,
			Score:         c.Score,
			Severity:      c.Severity,
			Timestamp:     time.Now().UTC(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].MetricName < records[j].MetricName
	})
	return records, nil
}
