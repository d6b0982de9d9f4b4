package model

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestRowMajor(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	cases := []struct {
		name string
		m    mat.Matrix
		want []float64
	}{
		{"dense", d, []float64{1, 2, 3, 4, 5, 6}},
		{"strided view", d.Slice(0, 2, 1, 3), []float64{2, 3, 5, 6}},
		{"transpose", d.T(), []float64{1, 4, 2, 5, 3, 6}},
	}
	for _, tc := range cases {
		if got := RowMajor(tc.m); !floats.Equal(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
