package fingerprint

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"regexp"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

const (
	// HashBits is the bit length of the perceptual hash.
	HashBits = 256

	// HexLength is the canonical encoded length: one hex char per 4 bits.
	HexLength = HashBits / 4

	// dctSize is the edge length the image is scaled to before the DCT.
	dctSize = 64

	// blockSize is the edge length of the retained low-frequency block;
	// blockSize^2 must equal HashBits.
	blockSize = 16
)

// hexPattern matches the canonical lowercase packed-hex encoding.
var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)

// HashResult contains the computed perceptual hash for an image.
type HashResult struct {
	// Hash is the 256-bit hash byte-packed into 64 lowercase hex characters.
	// Never a textual sequence of '0'/'1' bits.
	Hash string `json:"hash"`
	// Quality estimates how much visual structure backed the hash, 0-100.
	// Flat images (single color) produce low-quality hashes.
	Quality float64 `json:"quality"`
}

// Compute calculates the perceptual hash of an encoded image.
// Returns an error if the image cannot be decoded.
func Compute(imageData []byte) (*HashResult, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ComputeImage(img), nil
}

// ComputeImage calculates the perceptual hash of a decoded image.
func ComputeImage(img image.Image) *HashResult {
	// 1. Scale down for DCT processing
	resized := resizeImage(img, dctSize, dctSize)

	// 2. Convert to grayscale
	gray := toGrayscale(resized)

	// 3. 64x64 DCT-II
	dct := computeDCT(gray)

	// 4. Keep the top-left 16x16 low-frequency coefficients,
	//    excluding the DC component (0,0)
	lowFreq := make([]float64, 0, HashBits)
	for u := range blockSize {
		for v := range blockSize {
			if u == 0 && v == 0 {
				continue
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	// One more coefficient to replace the skipped DC term.
	lowFreq = append(lowFreq, dct[blockSize][0])

	// 5. Threshold against the median
	median := computeMedian(lowFreq)

	// 6. Pack bits into bytes: 8 bits per byte, then hex-encode.
	// Storing one bit per text character would produce a string 8x too
	// long and break the fixed-length contract.
	hashBytes := make([]byte, HashBits/8)
	for i, v := range lowFreq {
		if v > median {
			hashBytes[i/8] |= 1 << (7 - i%8)
		}
	}

	return &HashResult{
		Hash:    hex.EncodeToString(hashBytes),
		Quality: computeQuality(lowFreq, median),
	}
}

// computeQuality scores the spread of the DCT coefficients on a 0-100 scale.
// Images with little structure have coefficients clustered at the median and
// hash unreliably.
func computeQuality(coeffs []float64, median float64) float64 {
	if len(coeffs) == 0 {
		return 0
	}

	var spread float64
	for _, v := range coeffs {
		spread += math.Abs(v - median)
	}
	spread /= float64(len(coeffs))

	// Map mean absolute deviation to 0-100. The divisor was picked so
	// ordinary photos land near the top of the scale.
	quality := 100 * (1 - math.Exp(-spread/256))
	return math.Round(quality*100) / 100
}

// HammingDistance counts the differing bits between two packed-hex hashes.
func HammingDistance(hashA, hashB string) (int, error) {
	a, err := decodeHash(hashA)
	if err != nil {
		return 0, err
	}
	b, err := decodeHash(hashB)
	if err != nil {
		return 0, err
	}

	distance := 0
	for i := range a {
		distance += bits.OnesCount8(a[i] ^ b[i])
	}
	return distance, nil
}

// Similar reports whether two hashes are within the given bit distance.
// The boundary is inclusive: distance == threshold counts as similar.
func Similar(hashA, hashB string, threshold int) (bool, error) {
	d, err := HammingDistance(hashA, hashB)
	if err != nil {
		return false, err
	}
	return d <= threshold, nil
}

// decodeHash validates and decodes a canonical packed-hex hash.
func decodeHash(s string) ([]byte, error) {
	if len(s) != HexLength {
		return nil, fmt.Errorf("hash length %d, want %d hex chars", len(s), HexLength)
	}
	if !hexPattern.MatchString(s) {
		return nil, errors.New("hash is not lowercase hex")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hash: %w", err)
	}
	return b, nil
}

// IsValid reports whether s is a canonical packed-hex hash.
func IsValid(s string) bool {
	_, err := decodeHash(s)
	return err == nil
}

// IsBitString reports whether s uses the legacy one-character-per-bit
// encoding that some early rows were stored with.
func IsBitString(s string) bool {
	if len(s) != HashBits {
		return false
	}
	for _, c := range s {
		if c != '0' && c != '1' {
			return false
		}
	}
	return true
}

// PackBitString converts a legacy '0'/'1' bit-string into the canonical
// packed-hex encoding.
func PackBitString(s string) (string, error) {
	if !IsBitString(s) {
		return "", fmt.Errorf("not a %d-bit string", HashBits)
	}
	packed := make([]byte, HashBits/8)
	for i, c := range s {
		if c == '1' {
			packed[i/8] |= 1 << (7 - i%8)
		}
	}
	return hex.EncodeToString(packed), nil
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a square grayscale image.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// Separable DCT-II: rows first, then columns.
	rows := make([][]float64, size)
	for x := range size {
		rows[x] = make([]float64, size)
		for v := range size {
			var sum float64
			for y := range size {
				sum += gray[x][y] * cosTable[v][y]
			}
			rows[x][v] = sum
		}
	}

	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				sum += rows[x][v] * cosTable[u][x]
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
