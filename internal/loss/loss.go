// Package loss holds the regression criteria used for saliency training.
package loss

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"saliency-forge/internal/model"
)

// ErrShape reports predictions and labels of different dimensions.
var ErrShape = errors.New("loss: prediction and label shapes differ")

// Criterion scores predictions against labels.
type Criterion interface {
	// Loss returns the scalar loss.
	Loss(preds, labels mat.Matrix) (float64, error)
	// Grad returns the loss and dLoss/dPreds.
	Grad(preds, labels mat.Matrix) (float64, *mat.Dense, error)
}

// MSE is the mean of squared differences over every element.
type MSE struct{}

func (MSE) Loss(preds, labels mat.Matrix) (float64, error) {
	p, l, err := flatten(preds, labels)
	if err != nil {
		return 0, err
	}
	diff := make([]float64, len(p))
	floats.SubTo(diff, p, l)
	return floats.Dot(diff, diff) / float64(len(p)), nil
}

func (m MSE) Grad(preds, labels mat.Matrix) (float64, *mat.Dense, error) {
	v, err := m.Loss(preds, labels)
	if err != nil {
		return 0, nil, err
	}
	r, c := preds.Dims()
	g := mat.NewDense(r, c, nil)
	g.Sub(preds, labels)
	g.Scale(2/float64(r*c), g)
	return v, g, nil
}

// Sqrt wraps a criterion and takes the square root of its value. The
// gradient is the inner gradient scaled by 1/(2·sqrt(v)); at v == 0 it is
// defined as zero.
type Sqrt struct {
	Inner Criterion
}

func (s Sqrt) Loss(preds, labels mat.Matrix) (float64, error) {
	v, err := s.Inner.Loss(preds, labels)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

func (s Sqrt) Grad(preds, labels mat.Matrix) (float64, *mat.Dense, error) {
	v, g, err := s.Inner.Grad(preds, labels)
	if err != nil {
		return 0, nil, err
	}
	root := math.Sqrt(v)
	if root == 0 {
		g.Zero()
		return 0, g, nil
	}
	g.Scale(0.5/root, g)
	return root, g, nil
}

func flatten(preds, labels mat.Matrix) ([]float64, []float64, error) {
	pr, pc := preds.Dims()
	lr, lc := labels.Dims()
	if pr != lr || pc != lc {
		return nil, nil, errors.Wrapf(ErrShape, "preds %dx%d labels %dx%d", pr, pc, lr, lc)
	}
	return model.RowMajor(preds), model.RowMajor(labels), nil
}
