package generate

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtForMIME(t *testing.T) {
	tests := []struct{ mime, want string }{
		{"image/webp", ".webp"},
		{"image/jpeg", ".jpg"},
		{"image/jpg", ".jpg"},
		{"IMAGE/JPEG", ".jpg"},
		{"image/png", ".png"},
		{"", ".png"},
		{"application/octet-stream", ".png"},
	}
	for _, tt := range tests {
		if got := ExtForMIME(tt.mime); got != tt.want {
			t.Errorf("ExtForMIME(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

func TestCheckSquare(t *testing.T) {
	square, w, h, err := CheckSquare(pngBytes(t, 64, 64))
	if err != nil {
		t.Fatal(err)
	}
	if !square || w != 64 || h != 64 {
		t.Errorf("square image misjudged: square=%v %dx%d", square, w, h)
	}

	square, w, h, err = CheckSquare(pngBytes(t, 64, 48))
	if err != nil {
		t.Fatal(err)
	}
	if square {
		t.Errorf("non-square image passed QC (%dx%d)", w, h)
	}

	if _, _, _, err := CheckSquare([]byte("not an image")); err == nil {
		t.Error("expected decode error for garbage bytes")
	}
}
