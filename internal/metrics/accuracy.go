package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"saliency-forge/internal/model"
)

// ErrSizeMismatch reports labels and predictions with different element counts.
var ErrSizeMismatch = errors.New("metrics: labels and predictions differ in size")

// Metric scores predictions against labels. Higher is better.
type Metric func(labels, preds mat.Matrix) (float64, error)

// ExactMatch is the fraction of positions where label and prediction are
// exactly equal. The inputs only need the same total element count; both are
// read in row-major order.
//
// On continuous regression outputs this is almost always zero. WithinTolerance
// and Correlation are the meaningful alternatives.
func ExactMatch(labels, preds mat.Matrix) (float64, error) {
	return WithinTolerance(0)(labels, preds)
}

// WithinTolerance counts positions where |label - pred| <= tol.
func WithinTolerance(tol float64) Metric {
	return func(labels, preds mat.Matrix) (float64, error) {
		l, p, err := pair(labels, preds)
		if err != nil {
			return 0, err
		}
		hits := 0
		for i := range l {
			if l[i] == p[i] || math.Abs(l[i]-p[i]) <= tol {
				hits++
			}
		}
		return float64(hits) / float64(len(l)), nil
	}
}

// Correlation is the mean Pearson correlation between each label row and the
// matching prediction row (the saliency CC score). Rows with zero variance
// contribute zero.
func Correlation(labels, preds mat.Matrix) (float64, error) {
	lr, lc := labels.Dims()
	pr, pc := preds.Dims()
	if lr != pr || lc != pc {
		return 0, errors.Wrapf(ErrSizeMismatch, "labels %dx%d preds %dx%d", lr, lc, pr, pc)
	}
	if lr == 0 {
		return 0, nil
	}
	l := make([]float64, lc)
	p := make([]float64, pc)
	total := 0.0
	for i := 0; i < lr; i++ {
		mat.Row(l, i, labels)
		mat.Row(p, i, preds)
		cc := stat.Correlation(l, p, nil)
		if math.IsNaN(cc) {
			cc = 0
		}
		total += cc
	}
	return total / float64(lr), nil
}

func pair(labels, preds mat.Matrix) ([]float64, []float64, error) {
	lr, lc := labels.Dims()
	pr, pc := preds.Dims()
	if lr*lc != pr*pc {
		return nil, nil, errors.Wrapf(ErrSizeMismatch, "labels %dx%d preds %dx%d", lr, lc, pr, pc)
	}
	if lr*lc == 0 {
		return nil, nil, errors.Wrap(ErrSizeMismatch, "empty input")
	}
	return model.RowMajor(labels), model.RowMajor(preds), nil
}
