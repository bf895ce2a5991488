package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
)

// FetchArtwork downloads the cover at url and returns it as a JPEG no larger than size x size.
func FetchArtwork(ctx context.Context, client *http.Client, url string, size int) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	data, err := get(ctx, client, nil, "artwork", url, nil, nil)
	if err != nil {
		return nil, err
	}
	return ResizeArtwork(data, size)
}

// ResizeArtwork scales an image to fit within size x size, keeping its aspect ratio, and encodes it
// as JPEG. Smaller images are re-encoded at their own size.
func ResizeArtwork(data []byte, size int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if size > 0 && (width > size || height > size) {
		if width >= height {
			height = max(1, height*size/width)
			width = size
		} else {
			width = max(1, width*size/height)
			height = size
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode artwork: %w", err)
	}
	return buf.Bytes(), nil
}
