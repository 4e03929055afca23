package observability

import (
	"math"

	"github.com/kusuridheeraj/titan-grid/internal/models"
)

// Severity thresholds, as percent of the limit
const (
	criticalPercent = 300
	highPercent     = 150
	mediumPercent   = 120

	// maxRatio caps how far over the limit still raises the threat score
	maxRatio = 5.0
	// maxExcessPoints bounds the excess contribution to the threat score
	maxExcessPoints = 40
	// baseThreatPoints is added to every denial
	baseThreatPoints = 30
	maxThreatScore   = 100
)

var severityWeights = map[models.Severity]int{
	models.SeverityCritical: 30,
	models.SeverityHigh:     22,
	models.SeverityMedium:   15,
	models.SeverityLow:      8,
}

// ClassifySeverity grades demand against the limit. A non-positive limit is CRITICAL.
func ClassifySeverity(count, limit int64) models.Severity {
	if limit <= 0 {
		return models.SeverityCritical
	}
	pct := float64(count) / float64(limit) * 100
	switch {
	case pct > criticalPercent:
		return models.SeverityCritical
	case pct > highPercent:
		return models.SeverityHigh
	case pct > mediumPercent:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ThreatScore returns a 0-100 score combining overshoot and severity.
func ThreatScore(count, limit int64, severity models.Severity) int {
	if limit <= 0 {
		return maxThreatScore
	}
	ratio := math.Min(float64(count)/float64(limit), maxRatio)
	excess := min(int(ratio*20), maxExcessPoints)
	return min(excess+severityWeights[severity]+baseThreatPoints, maxThreatScore)
}

// PercentageOver returns count as a percentage of limit, rounded to one decimal.
func PercentageOver(count, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(limit)*1000) / 10
}
