package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

var (
	// ErrShape reports a tensor whose geometry does not fit the network.
	ErrShape = errors.New("model: shape mismatch")
	// ErrInferencePass is returned by Backward on a pass run in Eval mode.
	ErrInferencePass = errors.New("model: backward on inference pass")
)

// Mode selects whether a forward pass records what Backward needs.
type Mode int

const (
	Train Mode = iota
	Eval
)

func (m Mode) String() string {
	if m == Eval {
		return "eval"
	}
	return "train"
}

// Batch represents a minibatch of images and flattened saliency maps.
type Batch struct {
	// Images is [N, C, H, W].
	Images *tensor.Dense
	// Labels is [N, L].
	Labels *mat.Dense
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	if b.Labels == nil {
		return 0
	}
	r, _ := b.Labels.Dims()
	return r
}

// RowMajor returns the elements of m in row-major order. A contiguous
// *mat.Dense is returned without copying, so the result must not be modified.
func RowMajor(m mat.Matrix) []float64 {
	r, c := m.Dims()
	if d, ok := m.(*mat.Dense); ok {
		if raw := d.RawMatrix(); raw.Stride == c {
			return raw.Data[:r*c]
		}
	}
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// Network is a differentiable image to saliency-map regressor.
type Network interface {
	Forward(images *tensor.Dense, mode Mode) (*Pass, error)
	Params() []*Param
}

// Param is one learnable tensor. Grad is allocated on first use.
type Param struct {
	Name string
	Data []float64
	Grad []float64
}

func newParam(name string, size int) *Param {
	return &Param{Name: name, Data: make([]float64, size)}
}

// EnsureGrad allocates the gradient buffer if it is missing.
func (p *Param) EnsureGrad() []float64 {
	if len(p.Grad) != len(p.Data) {
		p.Grad = make([]float64, len(p.Data))
	}
	return p.Grad
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	clear(p.Grad)
}

// Pass is the result of one forward call.
type Pass struct {
	Output   *mat.Dense
	Mode     Mode
	backward func(grad *mat.Dense) error
}

// NewPass builds a pass for a Network implementation. backward may be nil for
// Eval passes.
func NewPass(out *mat.Dense, mode Mode, backward func(grad *mat.Dense) error) *Pass {
	return &Pass{Output: out, Mode: mode, backward: backward}
}

// Backward accumulates parameter gradients given dLoss/dOutput.
func (p *Pass) Backward(grad *mat.Dense) error {
	if p.Mode != Train || p.backward == nil {
		return ErrInferencePass
	}
	gr, gc := grad.Dims()
	or, oc := p.Output.Dims()
	if gr != or || gc != oc {
		return errors.Wrapf(ErrShape, "gradient %dx%d for output %dx%d", gr, gc, or, oc)
	}
	return p.backward(grad)
}
