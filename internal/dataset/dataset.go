package dataset

import (
	"context"

	"github.com/pkg/errors"
)

// Example is one decoded training pair.
type Example struct {
	// Image is [Channels, Height, Width] flattened.
	Image []float64
	// Map is [MapHeight, MapWidth] flattened.
	Map []float64
}

// Dataset yields decoded examples by index.
type Dataset interface {
	Len() int
	Geometry() Geometry
	Example(i int) (Example, error)
}

// ShardDataset holds every encoded sample of a split in memory and decodes on
// demand.
type ShardDataset struct {
	geom    Geometry
	samples []Sample
}

// OpenShards reads all samples from paths, in path order.
func OpenShards(ctx context.Context, paths []string, geom Geometry) (*ShardDataset, error) {
	if geom.ImageSize() <= 0 || geom.MapSize() <= 0 {
		return nil, errors.Errorf("dataset: invalid geometry %+v", geom)
	}
	ds := &ShardDataset{geom: geom}
	for _, path := range paths {
		samples, errCh := StreamShard(ctx, path, 0)
		for s := range samples {
			ds.samples = append(ds.samples, s)
		}
		if err := <-errCh; err != nil {
			return nil, errors.Wrapf(err, "dataset: load %s", path)
		}
	}
	if len(ds.samples) == 0 {
		return nil, errors.New("dataset: no samples")
	}
	return ds, nil
}

// Len returns the number of samples.
func (d *ShardDataset) Len() int { return len(d.samples) }

// Geometry returns the decoded geometry.
func (d *ShardDataset) Geometry() Geometry { return d.geom }

// Key returns the shard key of sample i.
func (d *ShardDataset) Key(i int) string { return d.samples[i].Key }

// Example decodes sample i.
func (d *ShardDataset) Example(i int) (Example, error) {
	if i < 0 || i >= len(d.samples) {
		return Example{}, errors.Errorf("dataset: index %d out of range [0,%d)", i, len(d.samples))
	}
	s := d.samples[i]
	ex := Example{
		Image: make([]float64, d.geom.ImageSize()),
		Map:   make([]float64, d.geom.MapSize()),
	}
	if err := decodeImage(s.Image, d.geom, ex.Image); err != nil {
		return Example{}, errors.Wrapf(err, "sample %s", s.Key)
	}
	if err := decodeMap(s.Map, d.geom, ex.Map); err != nil {
		return Example{}, errors.Wrapf(err, "sample %s", s.Key)
	}
	return ex, nil
}
