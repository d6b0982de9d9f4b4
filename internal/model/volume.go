package model

import "sync"

// volume is an activation batch laid out as [n, c, h, w]. Dense layers use
// h = w = 1.
type volume struct {
	n, c, h, w int
	data       []float64
}

func newVolume(n, c, h, w int) *volume {
	return &volume{n: n, c: c, h: h, w: w, data: make([]float64, n*c*h*w)}
}

func (v *volume) size() int { return v.c * v.h * v.w }

func (v *volume) sample(i int) []float64 {
	s := v.size()
	return v.data[i*s : (i+1)*s]
}

func (v *volume) flat() *volume {
	return &volume{n: v.n, c: v.size(), h: 1, w: 1, data: v.data}
}

// backwardFn maps dLoss/dOut to dLoss/dIn, accumulating parameter gradients
// on the way. It returns nil when the input gradient is not needed.
type backwardFn func(grad *volume) *volume

// chunks runs fn over [0,n) split into at most workers contiguous ranges and
// waits for all of them.
func chunks(n, workers int, fn func(worker, lo, hi int)) int {
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		if n > 0 {
			fn(0, 0, n)
		}
		return 1
	}
	per := (n + workers - 1) / workers
	var wg sync.WaitGroup
	used := 0
	for lo := 0; lo < n; lo += per {
		hi := lo + per
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(worker, lo, hi int) {
			defer wg.Done()
			fn(worker, lo, hi)
		}(used, lo, hi)
		used++
	}
	wg.Wait()
	return used
}
