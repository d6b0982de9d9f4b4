package loss

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestMSE(t *testing.T) {
	preds := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	labels := mat.NewDense(2, 2, []float64{1, 0, 3, 0})
	v, g, err := MSE{}.Grad(preds, labels)
	if err != nil {
		t.Fatalf("Grad: %v", err)
	}
	if v != 5 {
		t.Fatalf("mse=%g want 5", v)
	}
	want := mat.NewDense(2, 2, []float64{0, 1, 0, 2})
	if !mat.EqualApprox(g, want, 1e-12) {
		t.Fatalf("grad=%v want %v", mat.Formatted(g), mat.Formatted(want))
	}
}

func TestSqrtComposesWithMSE(t *testing.T) {
	preds := mat.NewDense(1, 4, []float64{1, 2, 3, 4})
	labels := mat.NewDense(1, 4, []float64{0, 0, 0, 0})
	crit := Sqrt{Inner: MSE{}}
	v, g, err := crit.Grad(preds, labels)
	if err != nil {
		t.Fatalf("Grad: %v", err)
	}
	if want := math.Sqrt(30.0 / 4); math.Abs(v-want) > 1e-12 {
		t.Fatalf("rmse=%g want %g", v, want)
	}

	const eps = 1e-6
	for j := 0; j < 4; j++ {
		orig := preds.At(0, j)
		preds.Set(0, j, orig+eps)
		plus, _ := crit.Loss(preds, labels)
		preds.Set(0, j, orig-eps)
		minus, _ := crit.Loss(preds, labels)
		preds.Set(0, j, orig)
		if num := (plus - minus) / (2 * eps); math.Abs(num-g.At(0, j)) > 1e-6 {
			t.Fatalf("grad[%d]=%g numeric %g", j, g.At(0, j), num)
		}
	}
}

func TestSqrtAtZero(t *testing.T) {
	m := mat.NewDense(1, 2, []float64{0.5, 0.5})
	v, g, err := Sqrt{Inner: MSE{}}.Grad(m, m)
	if err != nil {
		t.Fatalf("Grad: %v", err)
	}
	if v != 0 || g.At(0, 0) != 0 || g.At(0, 1) != 0 {
		t.Fatalf("expected zero loss and gradient, got %g %v", v, mat.Formatted(g))
	}
}

func TestShapeMismatch(t *testing.T) {
	_, err := MSE{}.Loss(mat.NewDense(1, 2, nil), mat.NewDense(2, 1, nil))
	if !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}
