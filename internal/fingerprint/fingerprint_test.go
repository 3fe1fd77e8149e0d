package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

// createGradientImage produces an image with enough structure for a
// meaningful hash.
func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8((x + y) * 255 / (width + height)),
				A: 255,
			})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestCompute_CanonicalEncoding(t *testing.T) {
	data := encodeJPEG(t, createGradientImage(200, 150))

	result, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if len(result.Hash) != HexLength {
		t.Errorf("hash length = %d, want %d", len(result.Hash), HexLength)
	}
	if !hexPattern.MatchString(result.Hash) {
		t.Errorf("hash %q is not lowercase hex", result.Hash)
	}
	if IsBitString(result.Hash) {
		t.Error("hash must never be a textual bit-string")
	}
	if result.Quality < 0 || result.Quality > 100 {
		t.Errorf("quality %f out of range [0,100]", result.Quality)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	data := encodeJPEG(t, createGradientImage(320, 240))

	first, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	second, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if first.Hash != second.Hash {
		t.Errorf("hash not deterministic: %s != %s", first.Hash, second.Hash)
	}
}

func TestCompute_UnreadableImage(t *testing.T) {
	if _, err := Compute([]byte("not an image")); err == nil {
		t.Error("expected error for undecodable data")
	}
}

func TestCompute_SimilarImagesCloseHashes(t *testing.T) {
	base := createGradientImage(200, 200)
	data := encodeJPEG(t, base)

	// Re-encoding at a lower quality perturbs pixels slightly.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, base, &jpeg.Options{Quality: 40}); err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	a, err := Compute(data)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	b, err := Compute(buf.Bytes())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	d, err := HammingDistance(a.Hash, b.Hash)
	if err != nil {
		t.Fatalf("HammingDistance failed: %v", err)
	}
	if d > 32 {
		t.Errorf("visually identical images hashed %d bits apart", d)
	}
}

func TestHammingDistance(t *testing.T) {
	zero := strings.Repeat("0", HexLength)
	one := strings.Repeat("0", HexLength-1) + "1" // lowest bit set
	all := strings.Repeat("f", HexLength)

	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", zero, zero, 0},
		{"one bit", zero, one, 1},
		{"all bits", zero, all, HashBits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HammingDistance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("HammingDistance failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("distance = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHammingDistance_RejectsWrongLength(t *testing.T) {
	if _, err := HammingDistance("abcd", strings.Repeat("0", HexLength)); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestSimilar_ThresholdBoundary(t *testing.T) {
	zero := strings.Repeat("0", HexLength)

	// Exactly 8 bits set -> distance 8 -> duplicate at the default threshold.
	eight := "ff" + strings.Repeat("0", HexLength-2)
	// 9 bits -> not a duplicate.
	nine := "ff8" + strings.Repeat("0", HexLength-3)

	got, err := Similar(zero, eight, 8)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if !got {
		t.Error("distance 8 must be classified as duplicate (boundary inclusive)")
	}

	got, err = Similar(zero, nine, 8)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if got {
		t.Error("distance 9 must not be classified as duplicate")
	}
}

func TestPackBitString(t *testing.T) {
	bitStr := strings.Repeat("11111111", 1) + strings.Repeat("0", HashBits-8)

	packed, err := PackBitString(bitStr)
	if err != nil {
		t.Fatalf("PackBitString failed: %v", err)
	}
	want := "ff" + strings.Repeat("0", HexLength-2)
	if packed != want {
		t.Errorf("packed = %s, want %s", packed, want)
	}
	if len(packed) != HexLength {
		t.Errorf("packed length = %d, want %d", len(packed), HexLength)
	}
}

func TestPackBitString_RejectsInvalid(t *testing.T) {
	if _, err := PackBitString("0101"); err == nil {
		t.Error("expected error for short bit-string")
	}
	if _, err := PackBitString(strings.Repeat("2", HashBits)); err == nil {
		t.Error("expected error for non-binary characters")
	}
}

func TestIsBitString(t *testing.T) {
	if !IsBitString(strings.Repeat("01", HashBits/2)) {
		t.Error("expected legacy bit-string to be recognized")
	}
	if IsBitString(strings.Repeat("0", HexLength)) {
		t.Error("canonical-length hex must not be treated as a bit-string")
	}
}

func TestQuality_FlatImageLow(t *testing.T) {
	flat := encodeJPEG(t, createTestImage(100, 100, color.White))
	textured := encodeJPEG(t, createGradientImage(100, 100))

	f, err := Compute(flat)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	g, err := Compute(textured)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if f.Quality >= g.Quality {
		t.Errorf("flat image quality %f should be below textured %f", f.Quality, g.Quality)
	}
}
