package seal

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func TestRenderPlainSeal(t *testing.T) {
	s, err := Render("aB3xQ9k2mZ1p", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if s.Degraded {
		t.Error("full-size seal should not degrade")
	}

	img, _, err := image.Decode(bytes.NewReader(s.PNG))
	if err != nil {
		t.Fatalf("decoding seal: %v", err)
	}
	if img.Bounds().Dx() != Size || img.Bounds().Dy() != Size {
		t.Errorf("expected %dx%d seal, got %dx%d", Size, Size, img.Bounds().Dx(), img.Bounds().Dy())
	}

	payload, ok := ExtractPayload(img)
	if !ok || payload != Payload {
		t.Errorf("watermark not recoverable from seal: %q, %v", payload, ok)
	}
}

func TestRenderWithBackground(t *testing.T) {
	bg := image.NewRGBA(image.Rect(0, 0, 800, 600))
	for i := range bg.Pix {
		bg.Pix[i] = 180
	}

	s, err := Render("aB3xQ9k2mZ1p", bg)
	if err != nil {
		t.Fatalf("Render with background: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(s.PNG))
	if err != nil {
		t.Fatalf("decoding seal: %v", err)
	}

	payload, ok := ExtractPayload(img)
	if !ok || payload != Payload {
		t.Errorf("watermark not recoverable from composed seal: %q, %v", payload, ok)
	}
}

func TestRenderEmptyCode(t *testing.T) {
	if _, err := Render("", nil); err == nil {
		t.Error("expected error for empty code")
	}
}

func TestProcessBackground(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2048, 1024))
	for x := 0; x < 2048; x++ {
		for y := 0; y < 1024; y++ {
			src.Set(x, y, color.RGBA{120, 60, 30, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90})

	bg, err := ProcessBackground(&buf)
	if err != nil {
		t.Fatalf("ProcessBackground: %v", err)
	}
	if bg.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", bg.MIME)
	}

	img, err := DecodeBackground(bg.Data)
	if err != nil {
		t.Fatalf("DecodeBackground: %v", err)
	}
	if img.Bounds().Dx() > MaxBackgroundDim || img.Bounds().Dy() > MaxBackgroundDim {
		t.Errorf("background not downscaled: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestProcessBackgroundRejectsNonImage(t *testing.T) {
	if _, err := ProcessBackground(strings.NewReader("not an image")); err == nil {
		t.Error("expected error for non-image upload")
	}
}

func TestWriteArchiveDeterministicOrder(t *testing.T) {
	// Deliberately unsorted input.
	codeList := []string{"zzz999", "aaa111", "mmm555"}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	degraded, err := WriteArchive(context.Background(), zw, codeList, nil)
	if err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
	if degraded != 0 {
		t.Errorf("expected no degraded seals, got %d", degraded)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	want := []string{"aaa111.png", "mmm555.png", "zzz999.png"}
	if len(zr.File) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], f.Name)
		}
	}
}

func TestWriteArchiveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := WriteArchive(ctx, zw, []string{"aaa111"}, nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}
