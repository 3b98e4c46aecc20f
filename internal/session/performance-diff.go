// performance-diff.go — Performance diff computation.
// diffPerformance and computeMetricChange functions.
package session

import (
	"fmt"
)

// computeMetricIfNonZero returns a MetricChange if at least one value is non-zero, else nil.
func computeMetricIfNonZero(before, after float64) *MetricChange {
	if before == 0 && after == 0 {
		return nil
	}
	return computeMetricChange(before, after)
}

// diffPerformance compares performance metrics between two snapshots.
func (sm *SessionManager) diffPerformance(a, b *NamedSnapshot) PerformanceDiff {
	if a.Performance == nil || b.Performance == nil {
		return PerformanceDiff{}
	}
	return PerformanceDiff{
		LoadTime:     computeMetricIfNonZero(a.Performance.Timing.Load, b.Performance.Timing.Load),
		RequestCount: computeMetricIfNonZero(float64(a.Performance.Network.RequestCount), float64(b.Performance.Network.RequestCount)),
		TransferSize: computeMetricIfNonZero(float64(a.Performance.Network.TransferSize), float64(b.Performance.Network.TransferSize)),
	}
}

// formatPctChange formats a percentage change as a signed string.
func formatPctChange(pctChange float64) string {
	if pctChange >= 0 {
		return fmt.Sprintf("+%.0f%%", pctChange)
	}
	return fmt.Sprintf("%.0f%%", pctChange)
}

// computeMetricChange creates a MetricChange comparing two values.
func computeMetricChange(before, after float64) *MetricChange {
	mc := &MetricChange{Before: before, After: after}

	if before == 0 {
		mc.Change = "0%"
		if after > 0 {
			mc.Change = "+inf"
			mc.Regression = true
		}
		return mc
	}

	mc.Change = formatPctChange(((after - before) / before) * 100)
	mc.Regression = after > before*perfRegressionRatio
	return mc
}
