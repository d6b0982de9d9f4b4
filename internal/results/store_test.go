package results

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFileStoreOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := FileStore{Dir: dir}

	first := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	if err := store.Save(first, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	labels := mat.NewDense(1, 2, []float64{0.25, 0.5})
	preds := mat.NewDense(1, 2, []float64{0.3, 0.45})
	if err := store.Save(labels, preds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	gotLabels, err := Load(filepath.Join(dir, LabelsFile))
	if err != nil {
		t.Fatalf("Load labels: %v", err)
	}
	gotPreds, err := Load(filepath.Join(dir, PredictionsFile))
	if err != nil {
		t.Fatalf("Load preds: %v", err)
	}
	if !mat.Equal(gotLabels, labels) || !mat.Equal(gotPreds, preds) {
		t.Fatalf("stored matrices were not replaced: %v %v", mat.Formatted(gotLabels), mat.Formatted(gotPreds))
	}
}
