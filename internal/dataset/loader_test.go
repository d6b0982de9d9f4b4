package dataset

import (
	"context"
	"sort"
	"testing"

	"github.com/pkg/errors"
)

var tinyGeometry = Geometry{Height: 2, Width: 2, Channels: 1, MapHeight: 1, MapWidth: 2}

// memDataset encodes each example's index into every value.
type memDataset struct {
	n      int
	failAt int
}

func (m memDataset) Len() int           { return m.n }
func (m memDataset) Geometry() Geometry { return tinyGeometry }

func (m memDataset) Example(i int) (Example, error) {
	if m.failAt > 0 && i == m.failAt {
		return Example{}, errors.Errorf("example %d is corrupt", i)
	}
	ex := Example{Image: make([]float64, tinyGeometry.ImageSize()), Map: make([]float64, tinyGeometry.MapSize())}
	for k := range ex.Image {
		ex.Image[k] = float64(i)
	}
	for k := range ex.Map {
		ex.Map[k] = float64(i)
	}
	return ex, nil
}

// drain returns the first label of every sample in pass order.
func drain(t *testing.T, l *Loader) ([][]int, error) {
	t.Helper()
	batches, errCh := l.Batches(context.Background())
	var out [][]int
	for b := range batches {
		shape := b.Images.Shape()
		if shape[0] != b.Size() || shape[1] != 1 || shape[2] != 2 || shape[3] != 2 {
			t.Fatalf("unexpected image shape %v for %d labels", shape, b.Size())
		}
		ids := make([]int, b.Size())
		for i := range ids {
			ids[i] = int(b.Labels.At(i, 0))
		}
		out = append(out, ids)
	}
	return out, <-errCh
}

func TestLoaderFixedOrder(t *testing.T) {
	l, err := NewLoader(memDataset{n: 10}, LoaderOptions{BatchSize: 4, NumWorkers: 3})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.Len() != 3 {
		t.Fatalf("Len=%d want 3", l.Len())
	}
	got, err := drain(t, l)
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	want := [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}
	if len(got) != len(want) {
		t.Fatalf("got %d batches, want %d", len(got), len(want))
	}
	for b := range want {
		if len(got[b]) != len(want[b]) {
			t.Fatalf("batch %d has %d samples, want %d", b, len(got[b]), len(want[b]))
		}
		for i := range want[b] {
			if got[b][i] != want[b][i] {
				t.Fatalf("batch %d = %v, want %v", b, got[b], want[b])
			}
		}
	}
}

func TestLoaderShufflePermutes(t *testing.T) {
	l, err := NewLoader(memDataset{n: 32}, LoaderOptions{BatchSize: 5, Shuffle: true, Seed: 7, NumWorkers: 2})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	var passes [][]int
	for p := 0; p < 2; p++ {
		got, err := drain(t, l)
		if err != nil {
			t.Fatalf("pass %d failed: %v", p, err)
		}
		var flat []int
		for _, b := range got {
			flat = append(flat, b...)
		}
		passes = append(passes, flat)
		sorted := append([]int(nil), flat...)
		sort.Ints(sorted)
		for i, v := range sorted {
			if v != i {
				t.Fatalf("pass %d is not a permutation: %v", p, flat)
			}
		}
	}
	same := true
	for i := range passes[0] {
		if passes[0][i] != passes[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("consecutive passes used the same order")
	}
}

func TestLoaderPropagatesExampleError(t *testing.T) {
	l, err := NewLoader(memDataset{n: 12, failAt: 6}, LoaderOptions{BatchSize: 4, NumWorkers: 2})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	got, err := drain(t, l)
	if err == nil {
		t.Fatal("expected error from corrupt example")
	}
	if len(got) != 1 {
		t.Fatalf("expected only the batch before the failure, got %d", len(got))
	}
}

func TestLoaderStopsOnCancel(t *testing.T) {
	l, err := NewLoader(memDataset{n: 100}, LoaderOptions{BatchSize: 1, NumWorkers: 4})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	batches, errCh := l.Batches(ctx)
	<-batches
	cancel()
	for range batches {
	}
	if err := <-errCh; err != nil {
		t.Fatalf("cancelled pass returned %v", err)
	}
}

func TestNewLoaderValidates(t *testing.T) {
	if _, err := NewLoader(memDataset{}, LoaderOptions{BatchSize: 1}); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, err := NewLoader(memDataset{n: 1}, LoaderOptions{}); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}
