package seal

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxBackgroundDim is the maximum width or height for stored seal
// backgrounds.
const MaxBackgroundDim = 1024

// backgroundJPEGQuality is the compression quality for stored backgrounds.
// Lossy storage is fine here: the watermark is embedded after composition,
// never into the stored background itself.
const backgroundJPEGQuality = 85

// allowedBackgroundMIME lists the accepted upload MIME types.
var allowedBackgroundMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Background contains a processed seal background ready for storage.
type Background struct {
	Data []byte
	MIME string
}

// ProcessBackground reads uploaded image data, validates the format by
// sniffing bytes, downscales if larger than MaxBackgroundDim, and
// re-encodes for storage.
func ProcessBackground(r io.Reader) (*Background, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	// Sniff actual MIME type from bytes (not trusting client headers).
	detected := http.DetectContentType(data)
	if !allowedBackgroundMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = downscale(img, MaxBackgroundDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: backgroundJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Background{
		Data: buf.Bytes(),
		MIME: "image/jpeg",
	}, nil
}

// DecodeBackground decodes stored background bytes for composition.
func DecodeBackground(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding background: %w", err)
	}
	return img, nil
}

// downscale resizes the image so neither dimension exceeds maxDim,
// preserving aspect ratio with Catmull-Rom interpolation. Returns the
// original image if already within bounds.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	// Register decoders (jpeg is registered by default, but be explicit).
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
