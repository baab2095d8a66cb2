package drift

import (
	"math"
	"sort"
)

const (
	// zScoreThreshold flags values more than this many standard deviations
	// from the mean.
	zScoreThreshold = 3.0

	// madThreshold and madConsistency follow the usual modified z-score
	// formulation (Iglewicz & Hoaglin).
	madThreshold   = 3.5
	madConsistency = 0.6745

	// minAnomalySamples is the history size required before any score can be
	// flagged. Early turns have too little signal to call anything an outlier.
	minAnomalySamples = 5
)

// zScoreAnomalies returns the indices of values whose z-score exceeds the
// threshold. Series with zero variance produce no anomalies.
func zScoreAnomalies(values []float64) []int {
	if len(values) < minAnomalySamples {
		return nil
	}
	m := mean(values)
	sd := stddev(values, m)
	if sd == 0 {
		return nil
	}

	var out []int
	for i, v := range values {
		if math.Abs(v-m)/sd > zScoreThreshold {
			out = append(out, i)
		}
	}
	return out
}

// madAnomalies returns the indices of values whose modified z-score, based on
// the median absolute deviation, exceeds the threshold. MAD is robust to the
// outliers themselves inflating the spread, unlike plain z-scores.
func madAnomalies(values []float64) []int {
	if len(values) < minAnomalySamples {
		return nil
	}
	med := median(values)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	if mad == 0 {
		return nil
	}

	var out []int
	for i, v := range values {
		if madConsistency*math.Abs(v-med)/mad > madThreshold {
			out = append(out, i)
		}
	}
	return out
}

// scoreIsAnomalous reports whether score is an outlier against the session's
// prior scores, using the MAD test with a z-score fallback when the MAD
// collapses to zero.
func scoreIsAnomalous(history []float64, score float64) bool {
	if len(history) < minAnomalySamples {
		return false
	}

	med := median(history)
	deviations := make([]float64, len(history))
	for i, v := range history {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	if mad > 0 {
		return madConsistency*math.Abs(score-med)/mad > madThreshold
	}

	m := mean(history)
	sd := stddev(history, m)
	if sd == 0 {
		return score != m
	}
	return math.Abs(score-m)/sd > zScoreThreshold
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
