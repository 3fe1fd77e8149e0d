package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

type Config struct {
	Database   DatabaseConfig
	Inference  InferenceConfig
	Photos     PhotosConfig
	Processing ProcessingConfig
	Filtering  FilteringConfig
	Search     SearchConfig
	Categories CategorySeed
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type InferenceConfig struct {
	URL          string // inference sidecar base URL, defaults to http://localhost:8000
	EmbeddingDim int    // semantic embedding dimension (default 1024)
	FaceDim      int    // face embedding dimension (default 512)
	ModelVersion string // embedding model version tag stored alongside vectors
}

type PhotosConfig struct {
	Dir              string   // directory scanned for photos
	ThumbnailDir     string   // directory for generated thumbnails
	ThumbnailSize    int      // max thumbnail dimension in pixels (default 400)
	SupportedFormats []string // lowercase extensions without dot
}

type ProcessingConfig struct {
	Workers            int // parallel pipeline workers (default 4)
	DuplicateThreshold int // max Hamming distance (bits) for near-duplicates (default 8)
	PollIntervalSec    int // worker idle poll interval in seconds (default 5)
}

// FilteringConfig controls dropping of noisy object detections (e.g. tiny
// background people) before persistence.
type FilteringConfig struct {
	NoisyTags     []string
	MinAreaRatio  float64 // minimum bbox area / image area for noisy tags
	MinConfidence float64 // minimum confidence for noisy tags
	MaxInstances  int     // max kept instances per noisy tag, 0 = unlimited
}

type SearchConfig struct {
	TopK          int    // per-list candidate count before fusion (default 100)
	RRFK          int    // reciprocal rank fusion constant, fixed contract value 60
	PageSize      int    // default result page size (default 50)
	HNSWIndexPath string // path to persist the semantic HNSW index (optional)
	HNSWEnabled   bool   // build an in-memory HNSW index on serve startup
}

// CategorySeed is the embedded default category / tag mapping reference data.
type CategorySeed struct {
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, trimming whitespace
// and dropping empty entries.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envBool(key string, defaultVal bool) bool {
	s := strings.ToLower(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	return s == "true" || s == "1" || s == "yes"
}

func Load() *Config {
	var seed CategorySeed
	if err := yaml.Unmarshal(categoriesYAML, &seed); err != nil {
		// Embedded file, should never happen in practice
		panic("failed to unmarshal embedded categories.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Inference: InferenceConfig{
			URL:          envString("INFERENCE_URL", "http://localhost:8000"),
			EmbeddingDim: envInt("EMBEDDING_DIM", 1024),
			FaceDim:      envInt("FACE_EMBEDDING_DIM", 512),
			ModelVersion: envString("EMBEDDING_MODEL_VERSION", "ViT-H-14/laion2b_s32b_b79k"),
		},
		Photos: PhotosConfig{
			Dir:              os.Getenv("PHOTOS_DIR"),
			ThumbnailDir:     envString("THUMBNAIL_DIR", "data/thumbnails"),
			ThumbnailSize:    envInt("THUMBNAIL_SIZE", 400),
			SupportedFormats: envList("SUPPORTED_FORMATS", []string{"jpg", "jpeg", "png", "gif", "bmp", "webp"}),
		},
		Processing: ProcessingConfig{
			Workers:            envInt("PIPELINE_WORKERS", 4),
			DuplicateThreshold: envInt("DUPLICATE_THRESHOLD", 8),
			PollIntervalSec:    envInt("PIPELINE_POLL_INTERVAL", 5),
		},
		Filtering: FilteringConfig{
			NoisyTags:     envList("NOISY_DETECTION_TAGS", []string{"person"}),
			MinAreaRatio:  envFloat("NOISY_TAG_MIN_AREA_RATIO", 0.02),
			MinConfidence: envFloat("NOISY_TAG_MIN_CONFIDENCE", 0.35),
			MaxInstances:  envInt("NOISY_TAG_MAX_INSTANCES", 3),
		},
		Search: SearchConfig{
			TopK:          envInt("SEARCH_TOP_K", 100),
			RRFK:          envInt("RRF_K", 60),
			PageSize:      envInt("GALLERY_PAGE_SIZE", 50),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
			HNSWEnabled:   envBool("HNSW_ENABLED", false),
		},
		Categories: seed,
	}
}
