package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jasl/photo-index/internal/config"
	"github.com/jasl/photo-index/internal/database"
	"github.com/jasl/photo-index/internal/fingerprint"
	"github.com/jasl/photo-index/internal/imaging"
	"github.com/jasl/photo-index/internal/inference"
)

// InferenceClient is the subset of the sidecar client the pipeline needs.
type InferenceClient interface {
	DetectObjects(ctx context.Context, imageData []byte) ([]inference.Detection, error)
	EmbedImage(ctx context.Context, imageData []byte) (*inference.EmbeddingResult, error)
	ExtractText(ctx context.Context, imageData []byte) (string, error)
	DetectFaces(ctx context.Context, imageData []byte) ([]inference.FaceDetection, error)
}

// Repos groups the repositories the pipeline writes to.
type Repos struct {
	Photos     database.PhotoRepository
	Tags       database.TagRepository
	Embeddings database.EmbeddingRepository
	OCR        database.OCRRepository
	Faces      database.FaceRepository
	Hashes     database.HashRepository
	Categories database.CategoryRepository
}

// Result summarizes one pipeline run over a single photo.
type Result struct {
	PhotoID        int64
	State          database.PhotoState
	StepsCompleted []string
	StepsFailed    []string
	TagCount       int
	FaceCount      int
	DuplicateCount int
	OCRTextLength  int
}

// Processor runs the per-photo processing state machine. Steps are
// independent: a failing step records its error and the run continues, so
// one bad model response never blocks the other steps' rows. Only an
// unreadable image fails the whole photo.
type Processor struct {
	repos     Repos
	inference InferenceClient
	cfg       *config.Config

	// preprocess is swappable so tests can run without image files on disk.
	preprocess func(path, thumbDir string, thumbMaxSize int) (*imaging.Result, error)
}

// NewProcessor creates a Processor over the given repositories and sidecar
// client.
func NewProcessor(repos Repos, client InferenceClient, cfg *config.Config) *Processor {
	return &Processor{
		repos:      repos,
		inference:  client,
		cfg:        cfg,
		preprocess: imaging.Preprocess,
	}
}

type step struct {
	name  string
	state database.PhotoState
	run   func(ctx context.Context, photo *database.Photo, img []byte) error
}

// Process runs every pipeline step for a claimed photo and records the
// terminal state. The photo must already be in the preprocessing state
// (claimed); re-runs replace each step's rows instead of appending.
func (p *Processor) Process(ctx context.Context, photo *database.Photo) (*Result, error) {
	result := &Result{PhotoID: photo.ID}

	pre, err := p.preprocess(photo.FilePath, p.cfg.Photos.ThumbnailDir, p.cfg.Photos.ThumbnailSize)
	if err != nil {
		msg := fmt.Sprintf("preprocessing: %v", err)
		log.Printf("photo %d: %s", photo.ID, msg)
		if ferr := p.repos.Photos.Finish(ctx, photo.ID, database.StateFailed, msg); ferr != nil {
			return nil, fmt.Errorf("record failed state: %w", ferr)
		}
		result.State = database.StateFailed
		result.StepsFailed = append(result.StepsFailed, "preprocessing")
		return result, nil
	}

	if err := p.repos.Photos.SetPreprocessed(ctx, photo.ID, pre.ThumbnailPath, pre.Width, pre.Height, pre.FileSize); err != nil {
		return nil, fmt.Errorf("record preprocessing output: %w", err)
	}
	photo.Width = pre.Width
	photo.Height = pre.Height
	result.StepsCompleted = append(result.StepsCompleted, "preprocessing")

	var hashOK bool
	var errorParts []string

	steps := []step{
		{"detecting_objects", database.StateDetectingObjects, func(ctx context.Context, photo *database.Photo, img []byte) error {
			return p.runObjectDetection(ctx, photo, img, result)
		}},
		{"embedding", database.StateEmbedding, func(ctx context.Context, photo *database.Photo, img []byte) error {
			return p.runEmbedding(ctx, photo, img)
		}},
		{"extracting_text", database.StateExtractingText, func(ctx context.Context, photo *database.Photo, img []byte) error {
			return p.runOCR(ctx, photo, img, result)
		}},
		{"detecting_faces", database.StateDetectingFaces, func(ctx context.Context, photo *database.Photo, img []byte) error {
			return p.runFaceDetection(ctx, photo, img, result)
		}},
		{"hashing", database.StateHashing, func(ctx context.Context, photo *database.Photo, img []byte) error {
			if err := p.runHashing(ctx, photo, img); err != nil {
				return err
			}
			hashOK = true
			return nil
		}},
		{"checking_duplicates", database.StateCheckingDuplicates, func(ctx context.Context, photo *database.Photo, _ []byte) error {
			return p.runDuplicateCheck(ctx, photo, result)
		}},
	}

	for _, s := range steps {
		if err := p.repos.Photos.AdvanceState(ctx, photo.ID, s.state); err != nil {
			return nil, fmt.Errorf("advance to %s: %w", s.state, err)
		}
		if s.name == "checking_duplicates" && !hashOK {
			// Without a fresh hash there is nothing to compare against.
			continue
		}
		if err := s.run(ctx, photo, pre.Image); err != nil {
			log.Printf("photo %d step %s: %v", photo.ID, s.name, err)
			result.StepsFailed = append(result.StepsFailed, s.name)
			errorParts = append(errorParts, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		result.StepsCompleted = append(result.StepsCompleted, s.name)
	}

	terminal := database.StateCompleted
	if len(result.StepsFailed) > 0 {
		terminal = database.StatePartial
	}
	if err := p.repos.Photos.Finish(ctx, photo.ID, terminal, strings.Join(errorParts, "; ")); err != nil {
		return nil, fmt.Errorf("record terminal state: %w", err)
	}
	result.State = terminal
	return result, nil
}

// ProcessNext claims one pending photo and processes it. Returns
// database.ErrNoPendingPhotos when the queue is empty.
func (p *Processor) ProcessNext(ctx context.Context) (*Result, error) {
	photo, err := p.repos.Photos.ClaimNextPending(ctx)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, photo)
}

func (p *Processor) runObjectDetection(ctx context.Context, photo *database.Photo, img []byte, result *Result) error {
	detections, err := p.inference.DetectObjects(ctx, img)
	if err != nil {
		return err
	}

	filtered := FilterDetections(detections, photo.Width, photo.Height, &p.cfg.Filtering)
	unique := DedupTags(filtered)

	tagNames := make([]string, len(unique))
	for i, d := range unique {
		tagNames[i] = d.Tag
	}
	categories, err := p.repos.Categories.TagCategories(ctx, tagNames)
	if err != nil {
		return err
	}
	categoryOf := func(tag string) *int64 {
		if id, ok := categories[tag]; ok {
			return &id
		}
		return nil
	}

	rows := make([]database.DetectedTag, len(filtered))
	for i, d := range filtered {
		rows[i] = database.DetectedTag{
			Tag:        d.Tag,
			Confidence: d.Confidence,
			CategoryID: categoryOf(d.Tag),
		}
		if d.BBox != nil {
			rows[i].BBox = &database.BBox{X1: d.BBox.X1, Y1: d.BBox.Y1, X2: d.BBox.X2, Y2: d.BBox.Y2}
		}
	}

	uniqueRows := make([]database.PhotoTag, len(unique))
	for i, d := range unique {
		uniqueRows[i] = database.PhotoTag{
			Tag:        d.Tag,
			Confidence: d.Confidence,
			CategoryID: categoryOf(d.Tag),
		}
	}

	if err := p.repos.Tags.ReplaceDetections(ctx, photo.ID, rows, uniqueRows); err != nil {
		return err
	}
	result.TagCount = len(uniqueRows)
	return nil
}

func (p *Processor) runEmbedding(ctx context.Context, photo *database.Photo, img []byte) error {
	emb, err := p.inference.EmbedImage(ctx, img)
	if err != nil {
		return err
	}
	modelVersion := emb.ModelVersion
	if modelVersion == "" {
		modelVersion = p.cfg.Inference.ModelVersion
	}
	return p.repos.Embeddings.Replace(ctx, photo.ID, emb.Embedding, modelVersion)
}

// runOCR stores extracted text. A photo with no readable text is a
// successful step with no row.
func (p *Processor) runOCR(ctx context.Context, photo *database.Photo, img []byte, result *Result) error {
	text, err := p.inference.ExtractText(ctx, img)
	if err != nil {
		return err
	}
	// OCR engines emit combining characters inconsistently; normalize so
	// full-text search matches the same word regardless of encoding.
	text = norm.NFC.String(text)
	if err := p.repos.OCR.Replace(ctx, photo.ID, text, "en"); err != nil {
		return err
	}
	result.OCRTextLength = len(text)
	return nil
}

func (p *Processor) runFaceDetection(ctx context.Context, photo *database.Photo, img []byte, result *Result) error {
	faces, err := p.inference.DetectFaces(ctx, img)
	if err != nil {
		return err
	}

	rows := make([]database.StoredFace, len(faces))
	for i, f := range faces {
		rows[i] = database.StoredFace{
			BBox:      database.FaceBBox{X: f.BBox.X, Y: f.BBox.Y, Width: f.BBox.Width, Height: f.BBox.Height},
			Embedding: f.Embedding,
			DetScore:  f.DetScore,
		}
	}
	if err := p.repos.Faces.ReplaceFaces(ctx, photo.ID, rows); err != nil {
		return err
	}
	result.FaceCount = len(rows)
	return nil
}

func (p *Processor) runHashing(ctx context.Context, photo *database.Photo, img []byte) error {
	hash, err := fingerprint.Compute(img)
	if err != nil {
		return err
	}
	return p.repos.Hashes.Replace(ctx, photo.ID, hash.Hash, hash.Quality)
}

// runDuplicateCheck walks every other stored hash linearly. The scan is
// lock-free and read-heavy; a hash committed by a concurrent worker a
// moment ago may be missed, which is accepted.
func (p *Processor) runDuplicateCheck(ctx context.Context, photo *database.Photo, result *Result) error {
	own, err := p.repos.Hashes.Get(ctx, photo.ID)
	if err != nil {
		return err
	}
	if own == nil {
		return fmt.Errorf("photo %d has no stored hash", photo.ID)
	}

	others, err := p.repos.Hashes.ListOthers(ctx, photo.ID)
	if err != nil {
		return err
	}

	threshold := p.cfg.Processing.DuplicateThreshold
	for _, other := range others {
		distance, err := fingerprint.HammingDistance(own.Hash, other.Hash)
		if err != nil {
			log.Printf("photo %d: skipping malformed hash for photo %d: %v", photo.ID, other.PhotoID, err)
			continue
		}
		if distance <= threshold {
			if err := p.repos.Hashes.UpsertDuplicate(ctx, photo.ID, other.PhotoID, distance); err != nil {
				return err
			}
			result.DuplicateCount++
		}
	}
	return nil
}
