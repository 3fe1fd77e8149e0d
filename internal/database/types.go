package database

import (
	"time"
)

// PhotoState tracks a photo's progress through the processing pipeline.
// States only ever advance forward (or reset to pending for reprocessing).
type PhotoState string

const (
	StatePending            PhotoState = "pending"
	StatePreprocessing      PhotoState = "preprocessing"
	StateDetectingObjects   PhotoState = "detecting_objects"
	StateEmbedding          PhotoState = "embedding"
	StateExtractingText     PhotoState = "extracting_text"
	StateDetectingFaces     PhotoState = "detecting_faces"
	StateHashing            PhotoState = "hashing"
	StateCheckingDuplicates PhotoState = "checking_duplicates"
	StateCompleted          PhotoState = "completed"
	StatePartial            PhotoState = "partial"
	StateFailed             PhotoState = "failed"
)

// stateRanks orders the forward progression. Terminal states share the top
// rank: once terminal, only an explicit reset moves a photo again.
var stateRanks = map[PhotoState]int{
	StatePending:            0,
	StatePreprocessing:      1,
	StateDetectingObjects:   2,
	StateEmbedding:          3,
	StateExtractingText:     4,
	StateDetectingFaces:     5,
	StateHashing:            6,
	StateCheckingDuplicates: 7,
	StateCompleted:          8,
	StatePartial:            8,
	StateFailed:             8,
}

// Rank returns the position of s in the forward ordering, or -1 for an
// unknown state.
func (s PhotoState) Rank() int {
	if r, ok := stateRanks[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is one of the defined states.
func (s PhotoState) Valid() bool {
	_, ok := stateRanks[s]
	return ok
}

// Terminal reports whether s is a final pipeline outcome.
func (s PhotoState) Terminal() bool {
	return s == StateCompleted || s == StatePartial || s == StateFailed
}

// Photo is an indexed photo file and its processing status.
type Photo struct {
	ID            int64
	FilePath      string
	Filename      string
	ThumbnailPath string
	State         PhotoState
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	FileSize      int64
	Width         int
	Height        int
	ErrorMessage  string
}

// BBox is an object bounding box in pixel coordinates, stored as JSON.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectedTag is one recognized object instance. A photo keeps every
// instance, including repeated tag strings at different locations.
type DetectedTag struct {
	ID         int64
	PhotoID    int64
	Tag        string
	Confidence float64
	CategoryID *int64
	BBox       *BBox
}

// PhotoTag is the deduplicated view: one row per (photo, tag) with the
// maximum confidence among that tag's instances.
type PhotoTag struct {
	ID         int64
	PhotoID    int64
	Tag        string
	Confidence float64
	CategoryID *int64
}

// StoredEmbedding is a photo's semantic embedding vector.
type StoredEmbedding struct {
	PhotoID      int64
	Embedding    []float32
	ModelVersion string
	Dim          int
	CreatedAt    time.Time
}

// OCRRecord holds text extracted from a photo. Absent when OCR found no text.
type OCRRecord struct {
	PhotoID  int64
	Text     string
	Language string
}

// FaceBBox is a detected face region.
type FaceBBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StoredFace is a detected face with its embedding. ClusterID is reserved
// for a later clustering job and is never set by the pipeline.
type StoredFace struct {
	ID        int64
	PhotoID   int64
	BBox      FaceBBox
	Embedding []float32
	DetScore  float64
	ClusterID *int64
}

// PhotoHash is a photo's perceptual hash in the canonical packed-hex
// encoding (64 lowercase hex characters for 256 bits).
type PhotoHash struct {
	PhotoID int64
	Hash    string
	Quality float64
}

// DuplicatePair records two photos whose hashes fall within the duplicate
// threshold. The pair is unordered; repositories normalize PhotoID1 < PhotoID2.
type DuplicatePair struct {
	PhotoID1        int64
	PhotoID2        int64
	HammingDistance int
}

// Category groups tags into broad buckets for filtering.
type Category struct {
	ID          int64
	Name        string
	Description string
}

// CategoryMapping is a category together with the tags mapped to it, used
// when seeding reference data.
type CategoryMapping struct {
	Name        string
	Description string
	Tags        []string
}

// ScoredPhoto is one ranked search result.
type ScoredPhoto struct {
	PhotoID int64
	Score   float64
}

// SearchFilters restrict search candidates after ranking.
type SearchFilters struct {
	Categories     []string
	DateFrom       *time.Time
	DateTo         *time.Time
	HideDuplicates bool
}
