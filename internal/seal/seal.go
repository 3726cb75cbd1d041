// Package seal renders the per-unit sealed artifact: a QR code carrying
// the unit's verification code, optionally composed over the batch's
// background image, with the authenticity watermark embedded into the
// pixel data. Output is always PNG so the watermark bits survive.
package seal

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

// Size is the edge length of a rendered seal in pixels.
const Size = 512

// qrInset is the border left around the QR when composed over a
// background.
const qrInset = Size / 8

// Seal is one rendered artifact. Degraded is set when the watermark could
// not be fully embedded; the seal is still usable, per the best-effort
// policy, but callers can log and count the degradation.
type Seal struct {
	PNG      []byte
	Degraded bool
}

// Render produces the sealed PNG for one unit code. A nil background
// yields a plain white-backed QR seal.
func Render(code string, background image.Image) (*Seal, error) {
	if code == "" {
		return nil, fmt.Errorf("empty unit code")
	}

	qrPNG, err := qrcode.Encode(code, qrcode.Medium, Size)
	if err != nil {
		return nil, fmt.Errorf("encoding QR for %s: %w", code, err)
	}
	qrImg, err := png.Decode(bytes.NewReader(qrPNG))
	if err != nil {
		return nil, fmt.Errorf("decoding QR image: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, Size, Size))
	if background != nil {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), background, background.Bounds(), draw.Src, nil)
		target := image.Rect(qrInset, qrInset, Size-qrInset, Size-qrInset)
		draw.CatmullRom.Scale(canvas, target, qrImg, qrImg.Bounds(), draw.Over, nil)
	} else {
		draw.Draw(canvas, canvas.Bounds(), qrImg, qrImg.Bounds().Min, draw.Src)
	}

	marked, degraded := EmbedPayload(canvas, Payload)

	var buf bytes.Buffer
	if err := png.Encode(&buf, marked); err != nil {
		return nil, fmt.Errorf("encoding seal PNG: %w", err)
	}

	return &Seal{PNG: buf.Bytes(), Degraded: degraded}, nil
}
