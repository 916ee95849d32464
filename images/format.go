// Package images - frame acquisition and preview rendering.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported still-frame formats.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWebP ImageFormat = "webp"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (ImageFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	}
	return "", false
}

// Decode decodes an encoded still frame.
//
// Arguments:
//   - data: The encoded bytes.
//   - format: The encoding.
//
// Returns:
//   - image.Image: The decoded frame.
//   - error: An error if the format is unknown or the data is corrupt.
func Decode(data []byte, format ImageFormat) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	case FormatPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		return nil, errors.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", format)
	}
	return img, nil
}

// Encode encodes a frame, e.g. for a preview snapshot.
func Encode(img image.Image, format ImageFormat) ([]byte, error) {
	var (
		buf bytes.Buffer
		err error
	)
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: 80})
	default:
		return nil, errors.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", format)
	}
	return buf.Bytes(), nil
}
