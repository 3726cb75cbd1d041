package seal

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 7), uint8(y * 13), 200, 255})
		}
	}
	return img
}

func TestWatermarkRoundTrip(t *testing.T) {
	img := testImage(64, 64)

	marked, degraded := EmbedPayload(img, Payload)
	if degraded {
		t.Fatal("64x64 image should fit the payload without degrading")
	}

	got, ok := ExtractPayload(marked)
	if !ok {
		t.Fatal("expected to find a terminator")
	}
	if got != Payload {
		t.Fatalf("extracted %q, want %q", got, Payload)
	}
}

func TestWatermarkSurvivesPNGRoundTrip(t *testing.T) {
	marked, _ := EmbedPayload(testImage(64, 64), Payload)

	var buf bytes.Buffer
	if err := png.Encode(&buf, marked); err != nil {
		t.Fatalf("encoding PNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}

	got, ok := ExtractPayload(decoded)
	if !ok || got != Payload {
		t.Fatalf("payload lost through PNG round trip: %q, %v", got, ok)
	}
}

func TestWatermarkTooSmallImageDegrades(t *testing.T) {
	// 3x3 = 9 pixels, nowhere near the 8*(len+1) bits needed.
	marked, degraded := EmbedPayload(testImage(3, 3), Payload)
	if !degraded {
		t.Error("expected degraded embed for tiny image")
	}
	if marked == nil {
		t.Fatal("degraded embed must still return an image")
	}
	if _, ok := ExtractPayload(marked); ok {
		t.Error("truncated payload should not extract cleanly")
	}
}

func TestWatermarkLeavesTrailingPixelsUntouched(t *testing.T) {
	img := testImage(64, 64)
	marked, _ := EmbedPayload(img, Payload)

	usedBits := (len(Payload) + 1) * 8
	for i := usedBits; i < 64*64; i++ {
		offset := i * 4
		for c := 0; c < 4; c++ {
			if marked.Pix[offset+c] != img.Pix[offset+c] {
				t.Fatalf("pixel %d channel %d modified beyond payload", i, c)
			}
		}
	}

	// Within the payload region, only the red LSB may change.
	for i := 0; i < usedBits; i++ {
		offset := i * 4
		if marked.Pix[offset]&^1 != img.Pix[offset]&^1 {
			t.Fatalf("pixel %d red channel changed beyond LSB", i)
		}
		for c := 1; c < 4; c++ {
			if marked.Pix[offset+c] != img.Pix[offset+c] {
				t.Fatalf("pixel %d channel %d modified", i, c)
			}
		}
	}
}

func TestExtractWithoutTerminator(t *testing.T) {
	// The test image's red gradient alternates LSBs, so every decoded
	// byte is 0x55 and the terminator never appears.
	if _, ok := ExtractPayload(testImage(16, 16)); ok {
		t.Error("unmarked image should not extract a payload")
	}
}
