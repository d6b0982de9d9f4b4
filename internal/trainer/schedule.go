package trainer

import "gonum.org/v1/gonum/floats"

// Schedule returns n evenly spaced values from start to stop inclusive. The
// last entry is exactly stop.
func Schedule(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	out := floats.Span(make([]float64, n), start, stop)
	out[n-1] = stop
	return out
}
