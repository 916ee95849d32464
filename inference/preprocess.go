package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Preprocess resizes img to size x size and writes it into dst as planar RGB
// (CHW) scaled to [0, 1].
//
// Arguments:
//   - img: The frame to prepare.
//   - size: The square model input edge in pixels.
//   - dst: The input tensor data; must hold at least 3*size*size floats.
//
// Returns:
//   - error: An error if dst is too small or the frame is empty.
func Preprocess(img image.Image, size int, dst []float32) error {
	if size <= 0 {
		return errors.Errorf("invalid input size %d", size)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return errors.New("empty frame")
	}

	channel := size * size
	if len(dst) < channel*3 {
		return errors.Errorf("input tensor holds %d floats, needs %d", len(dst), channel*3)
	}
	red := dst[0:channel]
	green := dst[channel : channel*2]
	blue := dst[channel*2 : channel*3]

	if bounds.Dx() != size || bounds.Dy() != size {
		img = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
		bounds = img.Bounds()
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
