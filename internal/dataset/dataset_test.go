package dataset

import (
	"context"
	"image/color"
	"math"
	"path/filepath"
	"testing"
)

var smallGeometry = Geometry{Height: 4, Width: 4, Channels: 3, MapHeight: 2, MapWidth: 2}

func TestOpenShardsDecodes(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, filepath.Join(dir, "shard-000000.tar"), []member{
		{"a.png", encodePNG(t, solidRGB(4, 4, color.RGBA{R: 255, G: 0, B: 51, A: 255}))},
		{"a.map", encodePNG(t, gradientMap(2, 2))},
	})
	writeShard(t, filepath.Join(dir, "shard-000001.tar"), []member{
		// Larger than the geometry, so it is resized on decode.
		{"b.png", encodePNG(t, solidRGB(8, 8, color.RGBA{R: 0, G: 255, B: 0, A: 255}))},
		{"b.map", encodePNG(t, gradientMap(6, 6))},
	})
	paths, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards: %v", err)
	}
	ds, err := OpenShards(context.Background(), paths, smallGeometry)
	if err != nil {
		t.Fatalf("OpenShards: %v", err)
	}
	if ds.Len() != 2 || ds.Key(0) != "a" || ds.Key(1) != "b" {
		t.Fatalf("unexpected dataset contents: len=%d", ds.Len())
	}

	a, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example(0): %v", err)
	}
	plane := 16
	if a.Image[0] != 1 || a.Image[plane] != 0 || math.Abs(a.Image[2*plane]-0.2) > 1e-9 {
		t.Fatalf("unexpected channel values %g %g %g", a.Image[0], a.Image[plane], a.Image[2*plane])
	}
	if a.Map[0] != 0 || a.Map[1] != 1 {
		t.Fatalf("unexpected map row %v", a.Map[:2])
	}

	b, err := ds.Example(1)
	if err != nil {
		t.Fatalf("Example(1): %v", err)
	}
	if len(b.Image) != smallGeometry.ImageSize() || len(b.Map) != smallGeometry.MapSize() {
		t.Fatalf("resized example has %d/%d values", len(b.Image), len(b.Map))
	}
	for i := 0; i < plane; i++ {
		if math.Abs(b.Image[plane+i]-1) > 1e-3 || math.Abs(b.Image[i]) > 1e-3 {
			t.Fatalf("resized solid image drifted at %d: r=%g g=%g", i, b.Image[i], b.Image[plane+i])
		}
	}
	for _, v := range b.Map {
		if v < 0 || v > 1 {
			t.Fatalf("map value out of range: %g", v)
		}
	}

	if _, err := ds.Example(2); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestExampleRejectsGarbage(t *testing.T) {
	ds := &ShardDataset{geom: smallGeometry, samples: []Sample{{Key: "x", Image: []byte("nope"), Map: []byte("nope")}}}
	if _, err := ds.Example(0); err == nil {
		t.Fatal("expected decode error")
	}
}
