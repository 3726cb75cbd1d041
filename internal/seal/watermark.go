package seal

import (
	"image"
	"image/draw"
)

// Payload is the authenticity marker embedded into every sealed image.
// It is recoverable bit-for-bit from the output and acts as a tamper
// indicator, not a stored entity.
const Payload = "CRITERION-MARK"

// terminator closes the embedded payload so extraction knows where to stop.
const terminator = byte(0x00)

// EmbedPayload writes payload plus a terminator byte into the image by
// overwriting the least-significant bit of each pixel's red channel, most
// significant bit first, in raster order. Pixels past the payload are left
// untouched. If the image is too small for the full payload the embed
// degrades gracefully, writing what fits, and the second return value is
// true. The caller must keep the output lossless for the bits to survive.
func EmbedPayload(src image.Image, payload string) (*image.RGBA, bool) {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	data := append([]byte(payload), terminator)
	totalBits := len(data) * 8
	pixels := bounds.Dx() * bounds.Dy()

	degraded := false
	if totalBits > pixels {
		totalBits = pixels
		degraded = true
	}

	for i := 0; i < totalBits; i++ {
		bit := (data[i/8] >> (7 - uint(i%8))) & 1
		offset := i * 4 // RGBA stride, red channel first
		dst.Pix[offset] = (dst.Pix[offset] &^ 1) | bit
	}

	return dst, degraded
}

// ExtractPayload reads least-significant red-channel bits in the same
// raster order until the terminator byte, returning the recovered payload.
// The second return value is false when no terminator is found before the
// pixels run out.
func ExtractPayload(src image.Image) (string, bool) {
	bounds := src.Bounds()
	pixels := bounds.Dx() * bounds.Dy()

	var payload []byte
	var current byte
	for i := 0; i < pixels; i++ {
		x := bounds.Min.X + i%bounds.Dx()
		y := bounds.Min.Y + i/bounds.Dx()
		r, _, _, _ := src.At(x, y).RGBA()
		bit := byte(r>>8) & 1

		current = current<<1 | bit
		if i%8 == 7 {
			if current == terminator {
				return string(payload), true
			}
			payload = append(payload, current)
			current = 0
		}
	}

	return "", false
}
