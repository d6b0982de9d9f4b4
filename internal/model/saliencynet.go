package model

import (
	"strings"

	"github.com/pkg/errors"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

const (
	// HeadWidth is the width of the projection fed to the maxout unit.
	HeadWidth = 4608
	// MapSize is the flattened saliency map produced per image.
	MapSize = HeadWidth / 2

	initBias      = 0.1
	initWeightStd = 0.01
)

// ImageShape describes the expected input geometry.
type ImageShape struct {
	Height   int
	Width    int
	Channels int
}

// Config configures a SaliencyNet.
type Config struct {
	Input ImageShape
	// Workers bounds the goroutines used inside one layer.
	Workers int
	Seed    int64
}

// SaliencyNet is a four stage convolutional feature extractor followed by a
// maxout-gated fully-connected regression head.
type SaliencyNet struct {
	input   ImageShape
	flatten int
	workers int

	conv1, conv2, conv3, conv4 *conv2d
	pool1, pool2, pool3        maxPool2d
	fc1, fc2                   *linear
}

// FlattenSize returns the feature count entering the head for the given
// input geometry, or ErrShape if any stage collapses to nothing.
func FlattenSize(in ImageShape) (int, error) {
	if in.Height <= 0 || in.Width <= 0 || in.Channels <= 0 {
		return 0, errors.Wrapf(ErrShape, "input %dx%dx%d", in.Height, in.Width, in.Channels)
	}
	n := &SaliencyNet{}
	n.layers(in.Channels, false)
	h, w := in.Height, in.Width
	stages := []struct {
		name string
		size func(h, w int) (int, int)
	}{
		{"conv1", n.conv1.outSize}, {"pool1", n.pool1.outSize},
		{"conv2", n.conv2.outSize}, {"pool2", n.pool2.outSize},
		{"conv3", n.conv3.outSize}, {"conv4", n.conv4.outSize},
		{"pool3", n.pool3.outSize},
	}
	for _, st := range stages {
		h, w = st.size(h, w)
		if h <= 0 || w <= 0 {
			return 0, errors.Wrapf(ErrShape, "input %dx%d collapses at %s", in.Height, in.Width, st.name)
		}
	}
	return n.conv4.out * h * w, nil
}

// NewSaliencyNet builds and initialises the network.
func NewSaliencyNet(cfg Config) (*SaliencyNet, error) {
	flatten, err := FlattenSize(cfg.Input)
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	n := &SaliencyNet{input: cfg.Input, flatten: flatten, workers: cfg.Workers}
	n.layers(cfg.Input.Channels, true)
	weights := distuv.Normal{Mu: 0, Sigma: initWeightStd, Src: exprand.NewSource(uint64(cfg.Seed))}
	for _, p := range n.Params() {
		initialise(p, weights)
	}
	return n, nil
}

func (n *SaliencyNet) layers(channels int, alloc bool) {
	n.conv1 = newConv2d("conv1", channels, 32, 5, 2, false)
	n.conv2 = newConv2d("conv2", 32, 64, 3, 1, true)
	n.conv3 = newConv2d("conv3", 64, 128, 3, 1, true)
	n.conv4 = newConv2d("conv4", 128, 256, 3, 1, true)
	n.pool1 = maxPool2d{kernel: 2, stride: 2}
	n.pool2 = maxPool2d{kernel: 3, stride: 2}
	n.pool3 = maxPool2d{kernel: 3, stride: 2}
	if alloc {
		n.fc1 = newLinear("fcl1", n.flatten, HeadWidth, true)
		n.fc2 = newLinear("fcl2", MapSize, MapSize, true)
	}
}

// initialise sets biases to a small positive constant so ReLUs start active,
// and draws weights from dist.
func initialise(p *Param, dist distuv.Normal) {
	if strings.HasSuffix(p.Name, ".bias") {
		for i := range p.Data {
			p.Data[i] = initBias
		}
		return
	}
	for i := range p.Data {
		p.Data[i] = dist.Rand()
	}
}

// Input returns the geometry the network was built for.
func (n *SaliencyNet) Input() ImageShape { return n.input }

// FlattenSize returns the number of features entering the head.
func (n *SaliencyNet) FlattenSize() int { return n.flatten }

// Params lists every learnable tensor in forward order.
func (n *SaliencyNet) Params() []*Param {
	var ps []*Param
	for _, c := range []*conv2d{n.conv1, n.conv2, n.conv3, n.conv4} {
		ps = append(ps, c.params()...)
	}
	ps = append(ps, n.fc1.params()...)
	ps = append(ps, n.fc2.params()...)
	return ps
}

// Forward maps images [N, C, H, W] to saliency maps [N, MapSize]. Only Train
// passes can be differentiated.
func (n *SaliencyNet) Forward(images *tensor.Dense, mode Mode) (*Pass, error) {
	x, err := n.volumeOf(images)
	if err != nil {
		return nil, err
	}
	var backs []backwardFn
	step := func(y *volume, back backwardFn) *volume {
		if mode == Train {
			backs = append(backs, back)
		}
		return y
	}

	x = step(n.conv1.forward(x, n.workers))
	x = step(relu(x))
	x = step(n.pool1.forward(x, n.workers))
	x = step(n.conv2.forward(x, n.workers))
	x = step(relu(x))
	x = step(n.pool2.forward(x, n.workers))
	x = step(n.conv3.forward(x, n.workers))
	x = step(relu(x))
	x = step(n.conv4.forward(x, n.workers))
	x = step(relu(x))
	x = step(n.pool3.forward(x, n.workers))
	if x.size() != n.flatten {
		return nil, errors.Wrapf(ErrShape, "flattened %d features, want %d", x.size(), n.flatten)
	}
	x = step(n.fc1.forward(x))
	x = step(maxout(x))
	x = step(n.fc2.forward(x))

	out := mat.NewDense(x.n, MapSize, x.data)
	if mode != Train {
		return NewPass(out, mode, nil), nil
	}
	batch := x.n
	return NewPass(out, mode, func(grad *mat.Dense) error {
		g := newVolume(batch, MapSize, 1, 1)
		for s := 0; s < batch; s++ {
			mat.Row(g.sample(s), s, grad)
		}
		for i := len(backs) - 1; i >= 0 && g != nil; i-- {
			g = backs[i](g)
		}
		return nil
	}), nil
}

func (n *SaliencyNet) volumeOf(images *tensor.Dense) (*volume, error) {
	if images == nil {
		return nil, errors.Wrap(ErrShape, "nil images")
	}
	shape := images.Shape()
	if len(shape) != 4 || shape[1] != n.input.Channels || shape[2] != n.input.Height || shape[3] != n.input.Width {
		return nil, errors.Wrapf(ErrShape, "images %v, want [N %d %d %d]", shape, n.input.Channels, n.input.Height, n.input.Width)
	}
	if shape[0] < 1 {
		return nil, errors.Wrap(ErrShape, "empty batch")
	}
	data, ok := images.Data().([]float64)
	if !ok {
		return nil, errors.Errorf("model: images must be float64, got %v", images.Dtype())
	}
	return &volume{n: shape[0], c: shape[1], h: shape[2], w: shape[3], data: data}, nil
}
