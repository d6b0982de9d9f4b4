package model

import "math"

// maxPool2d takes the maximum over kernel x kernel windows moved by stride,
// without padding. Partial windows at the border are dropped.
type maxPool2d struct {
	kernel, stride int
}

func (l maxPool2d) outSize(h, w int) (int, int) {
	if h < l.kernel || w < l.kernel {
		return 0, 0
	}
	return (h-l.kernel)/l.stride + 1, (w-l.kernel)/l.stride + 1
}

func (l maxPool2d) forward(x *volume, workers int) (*volume, backwardFn) {
	oh, ow := l.outSize(x.h, x.w)
	y := newVolume(x.n, x.c, oh, ow)
	// argmax holds, per output element, the winning index within its sample.
	argmax := make([]int32, len(y.data))
	per := x.c * oh * ow

	chunks(x.n, workers, func(_, lo, hi int) {
		for s := lo; s < hi; s++ {
			src := x.sample(s)
			dst := y.sample(s)
			arg := argmax[s*per : (s+1)*per]
			for c := 0; c < x.c; c++ {
				base := c * x.h * x.w
				for oy := 0; oy < oh; oy++ {
					for ox := 0; ox < ow; ox++ {
						best, at := math.Inf(-1), -1
						for ky := 0; ky < l.kernel; ky++ {
							row := base + (oy*l.stride+ky)*x.w + ox*l.stride
							for kx := 0; kx < l.kernel; kx++ {
								if v := src[row+kx]; v > best || at < 0 {
									best, at = v, row+kx
								}
							}
						}
						o := (c*oh+oy)*ow + ox
						dst[o] = best
						arg[o] = int32(at)
					}
				}
			}
		}
	})

	back := func(grad *volume) *volume {
		dx := newVolume(x.n, x.c, x.h, x.w)
		chunks(x.n, workers, func(_, lo, hi int) {
			for s := lo; s < hi; s++ {
				g := grad.sample(s)
				d := dx.sample(s)
				for o, at := range argmax[s*per : (s+1)*per] {
					d[at] += g[o]
				}
			}
		})
		return dx
	}
	return y, back
}
