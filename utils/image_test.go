package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 10), uint8(y * 10), 128, 255})
		}
	}
	return img
}

func TestImageHash(t *testing.T) {
	a := createTestImage(8, 6)
	b := createTestImage(8, 6)
	if ImageHash(a) != ImageHash(b) {
		t.Errorf("identical images should hash equally")
	}

	b.Pix[0]++
	if ImageHash(a) == ImageHash(b) {
		t.Errorf("different pixels should change the hash")
	}

	// 同样的像素字节、不同的尺寸
	c := &image.NRGBA{Pix: a.Pix, Stride: 6 * 4, Rect: image.Rect(0, 0, 6, 8)}
	if ImageHash(a) == ImageHash(c) {
		t.Errorf("different dimensions should change the hash")
	}
}

func TestImageHashSubImage(t *testing.T) {
	base := createTestImage(10, 10)
	sub := base.SubImage(image.Rect(2, 2, 6, 6)).(*image.NRGBA)

	copyImg := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			copyImg.Set(x, y, sub.At(x+2, y+2))
		}
	}
	if ImageHash(sub) != ImageHash(copyImg) {
		t.Errorf("sub-image should hash like an equal standalone image")
	}
}

func TestDecodeImagePNG(t *testing.T) {
	src := createTestImage(5, 4)
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode: %v", err)
	}

	img, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 4 {
		t.Errorf("decoded size = %v", img.Bounds())
	}
}

func TestDecodeImageInvalid(t *testing.T) {
	if _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Errorf("expected error for garbage input")
	}
}

func TestEncodePNGBase64(t *testing.T) {
	s, err := EncodePNGBase64(createTestImage(3, 3))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("payload is not a PNG: %v", err)
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	dir := t.TempDir()
	src := createTestImage(6, 6)

	for _, name := range []string{"out.png", "out.jpg", "out.webp"} {
		path := filepath.Join(dir, name)
		if err := SaveImage(src, path, 90); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		img, err := LoadImage(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if img.Bounds().Dx() != 6 || img.Bounds().Dy() != 6 {
			t.Errorf("%s: loaded size = %v", name, img.Bounds())
		}
	}
}

func TestSaveImageReportsWriteErrors(t *testing.T) {
	src := createTestImage(4, 4)
	missing := filepath.Join(t.TempDir(), "missing")

	for _, name := range []string{"out.png", "out.jpg", "out.webp"} {
		if err := SaveImage(src, filepath.Join(missing, name), 90); err == nil {
			t.Errorf("%s: expected error for a missing directory", name)
		}
	}

	// 目录位置上是普通文件
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := SaveImage(src, filepath.Join(blocker, "out.webp"), 90); err == nil {
		t.Errorf("expected error when the parent is a file")
	}
}
