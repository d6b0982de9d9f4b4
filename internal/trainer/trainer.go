// Package trainer drives epochs of optimisation and periodic validation.
package trainer

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"saliency-forge/internal/loss"
	"saliency-forge/internal/metrics"
	"saliency-forge/internal/model"
	"saliency-forge/internal/results"
	"saliency-forge/internal/summary"
)

// Loader yields one pass of batches per call and reports its batch count.
type Loader interface {
	Len() int
	Batches(ctx context.Context) (<-chan model.Batch, <-chan error)
}

// Optimizer applies accumulated gradients.
type Optimizer interface {
	Step()
	ZeroGrad()
	LearningRate() float64
	SetLearningRate(lr float64)
}

// Options wires the trainer's collaborators. Metric defaults to
// metrics.ExactMatch, Criterion to loss.MSE and Out to stdout. Store may be nil.
type Options struct {
	Network   model.Network
	Train     Loader
	Val       Loader
	Optimizer Optimizer
	Sink      summary.Sink
	Store     results.Store
	Metric    metrics.Metric
	Criterion loss.Criterion
	Out       io.Writer
}

// RunConfig holds the knobs of one Train call.
type RunConfig struct {
	Epochs         int
	ValFrequency   int
	LogFrequency   int
	PrintFrequency int
	InitialLR      float64
	FinalLR        float64
}

// Result summarises one validation pass.
type Result struct {
	Loss     float64
	Accuracy float64
	Batches  int
	Samples  int
}

// Trainer owns the global step counter.
type Trainer struct {
	opts      Options
	trainLoss loss.Criterion
	step      int
}

// New validates opts and fills defaults.
func New(opts Options) (*Trainer, error) {
	switch {
	case opts.Network == nil:
		return nil, errors.New("trainer: network is required")
	case opts.Train == nil || opts.Val == nil:
		return nil, errors.New("trainer: train and val loaders are required")
	case opts.Optimizer == nil:
		return nil, errors.New("trainer: optimizer is required")
	case opts.Sink == nil:
		return nil, errors.New("trainer: summary sink is required")
	}
	if opts.Metric == nil {
		opts.Metric = metrics.ExactMatch
	}
	if opts.Criterion == nil {
		opts.Criterion = loss.MSE{}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Trainer{opts: opts, trainLoss: loss.Sqrt{Inner: opts.Criterion}}, nil
}

// Step returns the number of optimisation steps taken so far.
func (t *Trainer) Step() int { return t.step }

// Train runs cfg.Epochs epochs. The learning rate follows a linear schedule
// from InitialLR to FinalLR; after epoch e it becomes schedule[e+1].
func (t *Trainer) Train(ctx context.Context, cfg RunConfig) error {
	if cfg.Epochs <= 0 {
		return errors.Errorf("trainer: epochs must be > 0 (got %d)", cfg.Epochs)
	}
	if cfg.ValFrequency <= 0 || cfg.LogFrequency <= 0 || cfg.PrintFrequency <= 0 {
		return errors.New("trainer: frequencies must be > 0")
	}
	schedule := Schedule(cfg.InitialLR, cfg.FinalLR, cfg.Epochs+1)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var window metrics.Window
		if err := t.trainEpoch(ctx, epoch, cfg, &window); err != nil {
			return errors.Wrapf(err, "epoch %d", epoch)
		}
		t.opts.Optimizer.SetLearningRate(schedule[epoch+1])

		snap := window.Snapshot()
		log.Printf("epoch=%d steps=%d images_per_sec=%.1f data_ms=%.2f step_ms=%.2f data_share=%.2f avg_loss=%.5f lr=%g",
			epoch, snap.Steps, snap.ImagesPerSec, snap.AvgDataMS, snap.AvgStepMS, snap.DataShare, snap.AvgLoss,
			t.opts.Optimizer.LearningRate())

		if err := t.opts.Sink.AddScalar("epoch", float64(epoch), t.step); err != nil {
			return err
		}
		if (epoch+1)%cfg.ValFrequency == 0 {
			if _, err := t.Validate(ctx); err != nil {
				return errors.Wrapf(err, "validate after epoch %d", epoch)
			}
		}
	}
	return nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int, cfg RunConfig, window *metrics.Window) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	batches, errCh := t.opts.Train.Batches(ctx)

	dataStart := time.Now()
	for {
		batch, ok, err := next(ctx, batches, errCh)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		dataEnd := time.Now()

		pass, err := t.opts.Network.Forward(batch.Images, model.Train)
		if err != nil {
			return err
		}
		value, grad, err := t.trainLoss.Grad(pass.Output, batch.Labels)
		if err != nil {
			return err
		}
		if err := pass.Backward(grad); err != nil {
			return err
		}
		t.opts.Optimizer.Step()
		t.opts.Optimizer.ZeroGrad()

		accuracy, err := t.opts.Metric(batch.Labels, pass.Output)
		if err != nil {
			return err
		}

		dataTime := dataEnd.Sub(dataStart)
		stepTime := time.Since(dataEnd)
		window.Record(batch.Size(), dataTime, stepTime, value)

		if (t.step+1)%cfg.LogFrequency == 0 {
			if err := t.logMetrics(epoch, accuracy, value, dataTime, stepTime); err != nil {
				return err
			}
		}
		if (t.step+1)%cfg.PrintFrequency == 0 {
			fmt.Fprintf(t.opts.Out,
				"epoch: [%d], step: [%d/%d], batch loss: %.5f, batch accuracy: %2.2f, data load time: %.5f, step time: %.5f\n",
				epoch, t.step%t.opts.Train.Len(), t.opts.Train.Len(), value, accuracy*100,
				dataTime.Seconds(), stepTime.Seconds())
		}
		t.step++
		dataStart = time.Now()
	}
}

func (t *Trainer) logMetrics(epoch int, accuracy, value float64, dataTime, stepTime time.Duration) error {
	sink := t.opts.Sink
	if err := sink.AddScalar("epoch", float64(epoch), t.step); err != nil {
		return err
	}
	if err := sink.AddScalars("accuracy", map[string]float64{"train": accuracy}, t.step); err != nil {
		return err
	}
	if err := sink.AddScalars("loss", map[string]float64{"train": value}, t.step); err != nil {
		return err
	}
	if err := sink.AddScalar("time/data", dataTime.Seconds(), t.step); err != nil {
		return err
	}
	return sink.AddScalar("time/step", stepTime.Seconds(), t.step)
}

// Validate runs the network in eval mode over one pass of the validation
// loader. The loss is the plain criterion averaged over batches, and the
// metric is computed once over every prediction. Labels and predictions are
// handed to the store, replacing whatever it held. Step and optimizer state
// are left untouched.
func (t *Trainer) Validate(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	batches, errCh := t.opts.Val.Batches(ctx)

	var (
		res               Result
		total             float64
		labelBuf, predBuf []float64
		cols              int
	)
	for {
		batch, ok, err := next(ctx, batches, errCh)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		pass, err := t.opts.Network.Forward(batch.Images, model.Eval)
		if err != nil {
			return Result{}, err
		}
		value, err := t.opts.Criterion.Loss(pass.Output, batch.Labels)
		if err != nil {
			return Result{}, err
		}
		total += value
		res.Batches++

		rows, c := pass.Output.Dims()
		if cols == 0 {
			cols = c
		} else if c != cols {
			return Result{}, errors.Wrapf(model.ErrShape, "validation batch width %d, previous %d", c, cols)
		}
		for i := 0; i < rows; i++ {
			predBuf = append(predBuf, mat.Row(nil, i, pass.Output)...)
			labelBuf = append(labelBuf, mat.Row(nil, i, batch.Labels)...)
		}
		res.Samples += rows
	}
	if res.Samples == 0 {
		return Result{}, errors.New("trainer: validation loader produced no samples")
	}

	labels := mat.NewDense(res.Samples, cols, labelBuf)
	preds := mat.NewDense(res.Samples, cols, predBuf)
	if t.opts.Store != nil {
		if err := t.opts.Store.Save(labels, preds); err != nil {
			return Result{}, err
		}
	}
	accuracy, err := t.opts.Metric(labels, preds)
	if err != nil {
		return Result{}, err
	}
	res.Accuracy = accuracy
	res.Loss = total / float64(t.opts.Val.Len())

	if err := t.opts.Sink.AddScalars("accuracy", map[string]float64{"test": res.Accuracy}, t.step); err != nil {
		return Result{}, err
	}
	if err := t.opts.Sink.AddScalars("loss", map[string]float64{"test": res.Loss}, t.step); err != nil {
		return Result{}, err
	}
	fmt.Fprintf(t.opts.Out, "validation loss: %.5f, accuracy: %2.2f\n", res.Loss, res.Accuracy*100)
	return res, nil
}

// next blocks for the next batch. ok is false once the pass is exhausted.
func next(ctx context.Context, batches <-chan model.Batch, errCh <-chan error) (model.Batch, bool, error) {
	select {
	case <-ctx.Done():
		return model.Batch{}, false, ctx.Err()
	case batch, ok := <-batches:
		if ok {
			return batch, true, nil
		}
	}
	if err := <-errCh; err != nil {
		return model.Batch{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return model.Batch{}, false, err
	}
	return model.Batch{}, false, nil
}
