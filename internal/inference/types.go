package inference

import (
	"fmt"
	"math"
)

// BBox is an object-detection bounding box in pixel coordinates.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the box has non-negative extent and finite corners.
func (b *BBox) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 >= b.X1 && b.Y2 >= b.Y1
}

// AreaRatio returns the proportion of the image covered by the box, clamped
// to the image boundaries. Returns -1 when the ratio cannot be computed.
func (b *BBox) AreaRatio(imageWidth, imageHeight int) float64 {
	if imageWidth <= 0 || imageHeight <= 0 {
		return -1
	}
	w := float64(imageWidth)
	h := float64(imageHeight)

	x1 := math.Max(0, math.Min(w, b.X1))
	y1 := math.Max(0, math.Min(h, b.Y1))
	x2 := math.Max(0, math.Min(w, b.X2))
	y2 := math.Max(0, math.Min(h, b.Y2))

	boxW := math.Max(0, x2-x1)
	boxH := math.Max(0, y2-y1)
	return (boxW * boxH) / (w * h)
}

// Detection is a single recognized object instance.
type Detection struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
	BBox       *BBox   `json:"bbox,omitempty"`
}

// FaceBBox is a detected face region as x/y/width/height.
type FaceBBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FaceDetection is a single detected face with its embedding.
type FaceDetection struct {
	BBox      FaceBBox  `json:"bbox"`
	Embedding []float32 `json:"embedding"`
	DetScore  float64   `json:"det_score"`
}

// EmbeddingResult contains an embedding vector and its model metadata.
type EmbeddingResult struct {
	Embedding    []float32
	ModelVersion string
	Dim          int
}

// validateDetections checks adapter output before it is ever persisted.
// Out-of-range confidences and malformed boxes are data-integrity bugs and
// must surface as step-local failures, not as silent corrupt rows.
func validateDetections(detections []Detection) error {
	for i, d := range detections {
		if d.Tag == "" {
			return fmt.Errorf("detection %d has empty tag", i)
		}
		if d.Confidence < 0 || d.Confidence > 1 || math.IsNaN(d.Confidence) {
			return fmt.Errorf("detection %d (%s) confidence %f out of [0,1]", i, d.Tag, d.Confidence)
		}
		if d.BBox != nil && !d.BBox.Valid() {
			return fmt.Errorf("detection %d (%s) has malformed bbox", i, d.Tag)
		}
	}
	return nil
}

// validateEmbedding checks the vector is non-empty, finite, and matches the
// expected dimension when one is configured.
func validateEmbedding(vec []float32, wantDim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding returned")
	}
	if wantDim > 0 && len(vec) != wantDim {
		return fmt.Errorf("embedding dim %d, want %d", len(vec), wantDim)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	return nil
}

// validateFaces checks face detections before persistence.
func validateFaces(faces []FaceDetection, wantDim int) error {
	for i, f := range faces {
		if f.BBox.Width < 0 || f.BBox.Height < 0 {
			return fmt.Errorf("face %d has negative bbox extent", i)
		}
		if err := validateEmbedding(f.Embedding, wantDim); err != nil {
			return fmt.Errorf("face %d: %w", i, err)
		}
	}
	return nil
}
