package generate

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ExtForMIME maps a response MIME type to the output file extension. The
// API output is saved raw, so an unknown MIME defaults to .png rather than
// failing the angle.
func ExtForMIME(mime string) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "webp"):
		return ".webp"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return ".jpg"
	default:
		return ".png"
	}
}

// CheckSquare decodes the image header and reports whether the picture is
// 1:1. The dimensions come back for logging either way.
func CheckSquare(raw []byte) (square bool, width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return false, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	return cfg.Width == cfg.Height, cfg.Width, cfg.Height, nil
}
