package model

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
)

// conv2d is a stride-1 zero-padded 2D convolution computed as one GEMM per
// sample over an im2col buffer.
type conv2d struct {
	in, out   int
	kernel    int
	pad       int
	weight    *Param // [out, in*kernel*kernel]
	bias      *Param // [out]
	inputGrad bool
}

func newConv2d(name string, in, out, kernel, pad int, inputGrad bool) *conv2d {
	return &conv2d{
		in:        in,
		out:       out,
		kernel:    kernel,
		pad:       pad,
		weight:    newParam(name+".weight", out*in*kernel*kernel),
		bias:      newParam(name+".bias", out),
		inputGrad: inputGrad,
	}
}

func (l *conv2d) outSize(h, w int) (int, int) {
	return h + 2*l.pad - l.kernel + 1, w + 2*l.pad - l.kernel + 1
}

func (l *conv2d) params() []*Param { return []*Param{l.weight, l.bias} }

func (l *conv2d) forward(x *volume, workers int) (*volume, backwardFn) {
	if x.c != l.in {
		panic(fmt.Sprintf("conv2d: %d input channels, want %d", x.c, l.in))
	}
	if workers < 1 {
		workers = 1
	}
	oh, ow := l.outSize(x.h, x.w)
	y := newVolume(x.n, l.out, oh, ow)
	rows, cols := l.in*l.kernel*l.kernel, oh*ow
	w := blas64.General{Rows: l.out, Cols: rows, Stride: rows, Data: l.weight.Data}

	chunks(x.n, workers, func(_, lo, hi int) {
		buf := make([]float64, rows*cols)
		col := blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: buf}
		for s := lo; s < hi; s++ {
			l.im2col(x.sample(s), x.h, x.w, oh, ow, buf)
			dst := y.sample(s)
			for o := 0; o < l.out; o++ {
				row := dst[o*cols : (o+1)*cols]
				for i := range row {
					row[i] = l.bias.Data[o]
				}
			}
			blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, w, col,
				1, blas64.General{Rows: l.out, Cols: cols, Stride: cols, Data: dst})
		}
	})

	back := func(grad *volume) *volume {
		var dx *volume
		if l.inputGrad {
			dx = newVolume(x.n, x.c, x.h, x.w)
		}
		dW := make([][]float64, workers)
		dB := make([][]float64, workers)
		chunks(x.n, workers, func(worker, lo, hi int) {
			gw := make([]float64, len(l.weight.Data))
			gb := make([]float64, l.out)
			buf := make([]float64, rows*cols)
			col := blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: buf}
			gwM := blas64.General{Rows: l.out, Cols: rows, Stride: rows, Data: gw}
			var dcol []float64
			if dx != nil {
				dcol = make([]float64, rows*cols)
			}
			for s := lo; s < hi; s++ {
				g := grad.sample(s)
				gM := blas64.General{Rows: l.out, Cols: cols, Stride: cols, Data: g}
				l.im2col(x.sample(s), x.h, x.w, oh, ow, buf)
				blas64.Gemm(blas.NoTrans, blas.Trans, 1, gM, col, 1, gwM)
				for o := 0; o < l.out; o++ {
					gb[o] += floats.Sum(g[o*cols : (o+1)*cols])
				}
				if dx != nil {
					blas64.Gemm(blas.Trans, blas.NoTrans, 1, w, gM,
						0, blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: dcol})
					l.col2im(dcol, x.h, x.w, oh, ow, dx.sample(s))
				}
			}
			dW[worker], dB[worker] = gw, gb
		})
		wg, bg := l.weight.EnsureGrad(), l.bias.EnsureGrad()
		for i := range dW {
			if dW[i] == nil {
				continue
			}
			floats.Add(wg, dW[i])
			floats.Add(bg, dB[i])
		}
		return dx
	}
	return y, back
}

// im2col lays out every kernel window of src as a column of dst, which is
// [in*kernel*kernel, oh*ow].
func (l *conv2d) im2col(src []float64, h, w, oh, ow int, dst []float64) {
	k := l.kernel
	cols := oh * ow
	for c := 0; c < l.in; c++ {
		plane := src[c*h*w : (c+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := dst[((c*k+ki)*k+kj)*cols:][:cols]
				for oy := 0; oy < oh; oy++ {
					iy := oy + ki - l.pad
					out := row[oy*ow : (oy+1)*ow]
					if iy < 0 || iy >= h {
						clear(out)
						continue
					}
					line := plane[iy*w : (iy+1)*w]
					for ox := range out {
						ix := ox + kj - l.pad
						if ix < 0 || ix >= w {
							out[ox] = 0
						} else {
							out[ox] = line[ix]
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it scatter-adds columns back into dst.
func (l *conv2d) col2im(src []float64, h, w, oh, ow int, dst []float64) {
	k := l.kernel
	cols := oh * ow
	for c := 0; c < l.in; c++ {
		plane := dst[c*h*w : (c+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := src[((c*k+ki)*k+kj)*cols:][:cols]
				for oy := 0; oy < oh; oy++ {
					iy := oy + ki - l.pad
					if iy < 0 || iy >= h {
						continue
					}
					line := plane[iy*w : (iy+1)*w]
					for ox, v := range row[oy*ow : (oy+1)*ow] {
						ix := ox + kj - l.pad
						if ix >= 0 && ix < w {
							line[ix] += v
						}
					}
				}
			}
		}
	}
}
