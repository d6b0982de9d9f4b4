package model

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// linear is a fully-connected layer y = x Wᵀ + b.
type linear struct {
	in, out   int
	weight    *Param // [out, in]
	bias      *Param // [out]
	inputGrad bool
}

func newLinear(name string, in, out int, inputGrad bool) *linear {
	return &linear{
		in:        in,
		out:       out,
		weight:    newParam(name+".weight", out*in),
		bias:      newParam(name+".bias", out),
		inputGrad: inputGrad,
	}
}

func (l *linear) params() []*Param { return []*Param{l.weight, l.bias} }

func (l *linear) forward(x *volume) (*volume, backwardFn) {
	x = x.flat()
	y := newVolume(x.n, l.out, 1, 1)
	for s := 0; s < x.n; s++ {
		copy(y.sample(s), l.bias.Data)
	}
	xm := blas64.General{Rows: x.n, Cols: l.in, Stride: l.in, Data: x.data}
	wm := blas64.General{Rows: l.out, Cols: l.in, Stride: l.in, Data: l.weight.Data}
	ym := blas64.General{Rows: x.n, Cols: l.out, Stride: l.out, Data: y.data}
	blas64.Gemm(blas.NoTrans, blas.Trans, 1, xm, wm, 1, ym)

	back := func(grad *volume) *volume {
		gm := blas64.General{Rows: x.n, Cols: l.out, Stride: l.out, Data: grad.data}
		dw := blas64.General{Rows: l.out, Cols: l.in, Stride: l.in, Data: l.weight.EnsureGrad()}
		blas64.Gemm(blas.Trans, blas.NoTrans, 1, gm, xm, 1, dw)
		db := l.bias.EnsureGrad()
		for s := 0; s < x.n; s++ {
			for i, v := range grad.sample(s) {
				db[i] += v
			}
		}
		if !l.inputGrad {
			return nil
		}
		dx := newVolume(x.n, l.in, 1, 1)
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, gm, wm,
			0, blas64.General{Rows: x.n, Cols: l.in, Stride: l.in, Data: dx.data})
		return dx
	}
	return y, back
}
