package model

// relu rectifies x in place.
func relu(x *volume) (*volume, backwardFn) {
	for i, v := range x.data {
		if v < 0 {
			x.data[i] = 0
		}
	}
	back := func(grad *volume) *volume {
		dx := &volume{n: grad.n, c: grad.c, h: grad.h, w: grad.w, data: make([]float64, len(grad.data))}
		for i, v := range x.data {
			if v > 0 {
				dx.data[i] = grad.data[i]
			}
		}
		return dx
	}
	return x, back
}

// maxout splits every row of x into two contiguous halves and keeps the
// elementwise maximum. Ties go to the first half.
func maxout(x *volume) (*volume, backwardFn) {
	width := x.size()
	half := width / 2
	y := newVolume(x.n, half, 1, 1)
	second := make([]bool, len(y.data))
	for s := 0; s < x.n; s++ {
		row := x.sample(s)
		out := y.sample(s)
		for i := 0; i < half; i++ {
			a, b := row[i], row[half+i]
			if b > a {
				out[i] = b
				second[s*half+i] = true
			} else {
				out[i] = a
			}
		}
	}
	back := func(grad *volume) *volume {
		dx := newVolume(x.n, width, 1, 1)
		for s := 0; s < x.n; s++ {
			g := grad.sample(s)
			d := dx.sample(s)
			for i, v := range g {
				if second[s*half+i] {
					d[half+i] = v
				} else {
					d[i] = v
				}
			}
		}
		return dx
	}
	return y, back
}
