package dataset

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Geometry fixes the decoded size of images and saliency maps.
type Geometry struct {
	Height    int
	Width     int
	Channels  int
	MapHeight int
	MapWidth  int
}

// ImageSize is the element count of one decoded image.
func (g Geometry) ImageSize() int { return g.Height * g.Width * g.Channels }

// MapSize is the element count of one decoded saliency map.
func (g Geometry) MapSize() int { return g.MapHeight * g.MapWidth }

// decodeImage returns the image as channel-major float64 in [0,1], resized to
// the geometry when the encoded size differs. One channel means luminance;
// four adds alpha.
func decodeImage(raw []byte, g Geometry, dst []float64) error {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "decode image")
	}
	if g.Channels != 1 && g.Channels != 3 && g.Channels != 4 {
		return errors.Errorf("unsupported channel count %d", g.Channels)
	}
	img = fit(img, g.Width, g.Height, func(r image.Rectangle) draw.Image { return image.NewRGBA64(r) })
	b := img.Bounds()
	plane := g.Height * g.Width
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			i := y*g.Width + x
			if g.Channels == 1 {
				dst[i] = float64(color.Gray16Model.Convert(c).(color.Gray16).Y) / 0xffff
				continue
			}
			r, gr, bl, a := c.RGBA()
			dst[i] = float64(r) / 0xffff
			dst[plane+i] = float64(gr) / 0xffff
			dst[2*plane+i] = float64(bl) / 0xffff
			if g.Channels == 4 {
				dst[3*plane+i] = float64(a) / 0xffff
			}
		}
	}
	return nil
}

// decodeMap returns the saliency map as row-major float64 intensities in
// [0,1].
func decodeMap(raw []byte, g Geometry, dst []float64) error {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "decode saliency map")
	}
	img = fit(img, g.MapWidth, g.MapHeight, func(r image.Rectangle) draw.Image { return image.NewGray16(r) })
	b := img.Bounds()
	for y := 0; y < g.MapHeight; y++ {
		for x := 0; x < g.MapWidth; x++ {
			v := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			dst[y*g.MapWidth+x] = float64(v) / 0xffff
		}
	}
	return nil
}

func fit(img image.Image, width, height int, alloc func(image.Rectangle) draw.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := alloc(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
