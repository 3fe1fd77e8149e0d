// Package imaging handles format normalization and thumbnail generation for
// the processing pipeline. A photo that cannot be decoded here is fatal for
// the whole pipeline run: no step can produce results without pixels.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

const jpegQuality = 85

// Result holds the outcome of preprocessing a photo file.
type Result struct {
	// Image is the decoded, JPEG-normalized image data used by all
	// subsequent inference steps.
	Image []byte
	// ThumbnailPath is where the generated thumbnail was written.
	ThumbnailPath string
	Width         int
	Height        int
	FileSize      int64
}

// Preprocess reads the photo at path, normalizes it to JPEG, and writes a
// thumbnail (max dimension thumbMaxSize) into thumbDir.
func Preprocess(path, thumbDir string, thumbMaxSize int) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat photo: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Non-JPEG formats are re-encoded so every downstream consumer sees
	// one format.
	normalized := data
	if format != "jpeg" {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("normalize to JPEG: %w", err)
		}
		normalized = buf.Bytes()
	}

	thumbPath, err := writeThumbnail(img, path, thumbDir, thumbMaxSize)
	if err != nil {
		return nil, err
	}

	return &Result{
		Image:         normalized,
		ThumbnailPath: thumbPath,
		Width:         width,
		Height:        height,
		FileSize:      info.Size(),
	}, nil
}

// writeThumbnail scales img to fit within maxSize and writes it as JPEG.
func writeThumbnail(img image.Image, srcPath, thumbDir string, maxSize int) (string, error) {
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}

	thumb := Resize(img, maxSize)

	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)] + "_thumb.jpg"
	thumbPath := filepath.Join(thumbDir, name)

	f, err := os.Create(thumbPath)
	if err != nil {
		return "", fmt.Errorf("create thumbnail: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	return thumbPath, nil
}

// Resize scales an image to fit within maxSize while keeping aspect ratio.
// Images already within bounds are returned unchanged.
func Resize(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}
