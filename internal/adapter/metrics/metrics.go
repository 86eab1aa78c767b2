package metrics

import "inu/internal/domain"

// ComputeMetrics scores predictions against ground truth for a single positive
// label. A true negative is a correct prediction of a non-positive label; a
// non-positive truth predicted as a different non-positive label lands in no
// confusion cell but still counts toward support, so it lowers accuracy.
// UNKNOWN predictions are tallied in their own buckets. Every zero
// denominator resolves to 0.
func ComputeMetrics(rows []domain.EvaluationRow, positive domain.Label) domain.ClassificationMetrics {
	var c domain.ConfusionMatrix

	for _, row := range rows {
		truthPositive := row.Truth == positive

		if row.Prediction == domain.Unknown {
			if truthPositive {
				c.UnknownPositive++
			} else {
				c.UnknownNegative++
			}
			continue
		}

		predPositive := row.Prediction == positive
		switch {
		case truthPositive && predPositive:
			c.TP++
		case !truthPositive && !predPositive:
			if row.Truth == row.Prediction {
				c.TN++
			}
		case truthPositive && !predPositive:
			c.FN++
		default:
			c.FP++
		}
	}

	support := len(rows)
	precision := safeDivide(float64(c.TP), float64(c.TP+c.FP))
	recall := safeDivide(float64(c.TP), float64(c.TP+c.FN))

	return domain.ClassificationMetrics{
		Accuracy:    safeDivide(float64(c.TP+c.TN), float64(support)),
		Precision:   precision,
		Recall:      recall,
		F1:          safeDivide(2*precision*recall, precision+recall),
		UnknownRate: safeDivide(float64(c.UnknownPositive+c.UnknownNegative), float64(support)),
		Support:     support,
		Confusion:   c,
	}
}

// PerLabel computes one-vs-rest metrics for every label present in the truth
// column.
func PerLabel(rows []domain.EvaluationRow) map[domain.Label]domain.ClassificationMetrics {
	out := make(map[domain.Label]domain.ClassificationMetrics)
	for _, row := range rows {
		if _, ok := out[row.Truth]; ok {
			continue
		}
		out[row.Truth] = ComputeMetrics(rows, row.Truth)
	}
	return out
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
