package summary

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const maxRuns = 1000

// RunDir returns the first unused log directory for a run with the given
// hyperparameters, so that separate runs never share an events file. The
// directory itself is not created.
func RunDir(logDir string, batchSize int, lr float64) (string, error) {
	prefix := fmt.Sprintf("CNN_bs=%d_lr=%g_run_", batchSize, lr)
	var dir string
	for i := 0; i < maxRuns; i++ {
		dir = filepath.Join(logDir, fmt.Sprintf("%s%d", prefix, i))
		_, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return dir, nil
		}
		if err != nil {
			return "", errors.Wrapf(err, "summary: stat %s", dir)
		}
	}
	return dir, nil
}
