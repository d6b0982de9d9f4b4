// Package results persists validation predictions next to their labels.
package results

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	LabelsFile      = "final_label.bin"
	PredictionsFile = "final_preds.bin"
)

// Store receives the complete label and prediction matrices of one
// validation pass.
type Store interface {
	Save(labels, preds *mat.Dense) error
}

// FileStore writes gonum binary matrices under Dir, replacing the previous
// pass every time.
type FileStore struct {
	Dir string
}

// Save overwrites LabelsFile and PredictionsFile.
func (s FileStore) Save(labels, preds *mat.Dense) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errors.Wrap(err, "results: create dir")
	}
	if err := writeMatrix(filepath.Join(s.Dir, LabelsFile), labels); err != nil {
		return err
	}
	return writeMatrix(filepath.Join(s.Dir, PredictionsFile), preds)
}

func writeMatrix(path string, m *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "results: create %s", path)
	}
	w := bufio.NewWriter(f)
	if _, err := m.MarshalBinaryTo(w); err != nil {
		f.Close()
		return errors.Wrapf(err, "results: encode %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "results: flush %s", path)
	}
	return errors.Wrapf(f.Close(), "results: close %s", path)
}

// Load reads a matrix written by FileStore.
func Load(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "results: open")
	}
	defer f.Close()
	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.Wrapf(err, "results: decode %s", path)
	}
	return &m, nil
}
