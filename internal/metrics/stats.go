package metrics

import "time"

// Window accumulates per-step timings and losses over one epoch.
type Window struct {
	images   int
	wait     time.Duration
	busy     time.Duration
	steps    int
	lossSum  float64
	lastLoss float64
}

// Record adds one optimisation step: the batch size, the time spent waiting
// on the loader, the time spent in forward/backward/update, and the loss.
func (w *Window) Record(batchSize int, dataTime, stepTime time.Duration, loss float64) {
	w.images += batchSize
	w.wait += dataTime
	w.busy += stepTime
	w.steps++
	w.lossSum += loss
	w.lastLoss = loss
}

// Steps reports how many steps the window holds.
func (w *Window) Steps() int { return w.steps }

// Snapshot summarises the window and resets it.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps, LastLoss: w.lastLoss}
	if total := w.wait + w.busy; total > 0 {
		snap.ImagesPerSec = float64(w.images) / total.Seconds()
		snap.DataShare = w.wait.Seconds() / total.Seconds()
	}
	if w.steps > 0 {
		n := float64(w.steps)
		snap.AvgDataMS = float64(w.wait.Microseconds()) / 1000 / n
		snap.AvgStepMS = float64(w.busy.Microseconds()) / 1000 / n
		snap.AvgLoss = w.lossSum / n
	}
	*w = Window{}
	return snap
}

// Snapshot is a loggable summary of a Window.
type Snapshot struct {
	Steps        int
	ImagesPerSec float64
	// DataShare is the fraction of wall time spent waiting for batches.
	DataShare    float64
	AvgDataMS    float64
	AvgStepMS    float64
	AvgLoss      float64
	LastLoss     float64
}
