// Package optim updates model parameters from accumulated gradients.
package optim

import (
	"github.com/pkg/errors"

	"saliency-forge/internal/model"
)

// SGDConfig configures stochastic gradient descent.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// SGD is stochastic gradient descent with optional momentum, Nesterov
// acceleration and L2 weight decay. Update rule per parameter p with gradient g:
//
//	d = g + decay·p
//	buf = momentum·buf + d   (buf = d on the first step)
//	d = d + momentum·buf     (Nesterov) or d = buf
//	p = p - lr·d
type SGD struct {
	cfg    SGDConfig
	params []*model.Param
	bufs   [][]float64
}

// NewSGD binds an optimizer to params.
func NewSGD(params []*model.Param, cfg SGDConfig) (*SGD, error) {
	if cfg.LearningRate <= 0 {
		return nil, errors.Errorf("optim: learning rate must be > 0 (got %g)", cfg.LearningRate)
	}
	if cfg.Momentum < 0 || cfg.WeightDecay < 0 {
		return nil, errors.Errorf("optim: momentum and weight decay must be >= 0")
	}
	if cfg.Nesterov && cfg.Momentum == 0 {
		return nil, errors.New("optim: nesterov requires momentum")
	}
	return &SGD{cfg: cfg, params: params, bufs: make([][]float64, len(params))}, nil
}

// LearningRate returns the current rate.
func (o *SGD) LearningRate() float64 { return o.cfg.LearningRate }

// SetLearningRate replaces the current rate.
func (o *SGD) SetLearningRate(lr float64) { o.cfg.LearningRate = lr }

// Step applies one update. Parameters without a gradient are skipped.
func (o *SGD) Step() {
	lr, mu, decay := o.cfg.LearningRate, o.cfg.Momentum, o.cfg.WeightDecay
	for i, p := range o.params {
		if len(p.Grad) != len(p.Data) {
			continue
		}
		buf := o.bufs[i]
		first := false
		if mu != 0 && buf == nil {
			buf = make([]float64, len(p.Data))
			o.bufs[i] = buf
			first = true
		}
		for j, g := range p.Grad {
			d := g + decay*p.Data[j]
			if mu != 0 {
				if first {
					buf[j] = d
				} else {
					buf[j] = mu*buf[j] + d
				}
				if o.cfg.Nesterov {
					d += mu * buf[j]
				} else {
					d = buf[j]
				}
			}
			p.Data[j] -= lr * d
		}
	}
}

// ZeroGrad clears every parameter gradient.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}
