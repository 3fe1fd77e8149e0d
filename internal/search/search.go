package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jasl/photo-index/internal/database"
	"github.com/jasl/photo-index/internal/inference"
)

// Mode selects which ranked lists contribute to the result.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
)

// ParseMode maps a request string to a Mode, defaulting to hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeHybrid, Mode(""):
		return ModeHybrid, nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeSemantic:
		return ModeSemantic, nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

// TextEmbedder turns a query string into a vector in the same space as the
// stored photo embeddings.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) (*inference.EmbeddingResult, error)
}

// Params is one search request.
type Params struct {
	Query          string
	Mode           Mode
	Categories     []string
	DateFrom       *time.Time
	DateTo         *time.Time
	HideDuplicates bool
	Limit          int
	Offset         int
}

// Result is one ranked hit.
type Result struct {
	PhotoID int64   `json:"photo_id"`
	Score   float64 `json:"score"`
}

// Engine answers search queries by fusing keyword and semantic rankings.
// It is read-only and safe for concurrent use.
type Engine struct {
	repo     database.SearchRepository
	embedder TextEmbedder
	topK     int
	rrfK     int
}

// NewEngine creates a search engine. topK bounds each ranked list before
// fusion; rrfK is normally RRFK.
func NewEngine(repo database.SearchRepository, embedder TextEmbedder, topK, rrfK int) *Engine {
	if topK <= 0 {
		topK = 100
	}
	if rrfK <= 0 {
		rrfK = RRFK
	}
	return &Engine{repo: repo, embedder: embedder, topK: topK, rrfK: rrfK}
}

// Search returns ranked photo ids for the query. An empty or whitespace
// query yields no results in every mode: the keyword list is empty by
// definition and an empty string is invalid input for the text embedder.
func (e *Engine) Search(ctx context.Context, params Params) ([]Result, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, nil
	}

	mode := params.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	var keyword, semantic []database.ScoredPhoto
	var err error

	if mode == ModeHybrid || mode == ModeKeyword {
		keyword, err = e.keywordList(ctx, query)
		if err != nil {
			return nil, err
		}
	}
	if mode == ModeHybrid || mode == ModeSemantic {
		semantic, err = e.semanticList(ctx, query)
		if err != nil {
			if mode == ModeSemantic {
				return nil, err
			}
			// Hybrid degrades: a failed embedding leaves the semantic
			// list empty rather than failing the whole query.
			semantic = nil
		}
	}

	var scores map[int64]float64
	switch mode {
	case ModeKeyword:
		scores = listScores(keyword)
	case ModeSemantic:
		scores = listScores(semantic)
	default:
		scores = FuseRRF(e.rrfK, keyword, semantic)
	}
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}

	survivors, err := e.repo.FilterCandidates(ctx, ids, database.SearchFilters{
		Categories:     params.Categories,
		DateFrom:       params.DateFrom,
		DateTo:         params.DateTo,
		HideDuplicates: params.HideDuplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("apply filters: %w", err)
	}

	results := make([]Result, 0, len(survivors))
	for id := range survivors {
		results = append(results, Result{PhotoID: id, Score: scores[id]})
	}

	// Descending score; ties go to the most recently created photo, then
	// the higher id, so repeated queries return identical orderings.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ci, cj := survivors[results[i].PhotoID], survivors[results[j].PhotoID]
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return results[i].PhotoID > results[j].PhotoID
	})

	return paginate(results, params.Offset, params.Limit), nil
}

// keywordList merges the OCR full-text ranking and the tag substring
// ranking into one list. A photo matching both sums the two scores.
func (e *Engine) keywordList(ctx context.Context, query string) ([]database.ScoredPhoto, error) {
	ocr, err := e.repo.SearchOCR(ctx, query, e.topK)
	if err != nil {
		return nil, fmt.Errorf("ocr search: %w", err)
	}
	tags, err := e.repo.SearchTags(ctx, query, e.topK)
	if err != nil {
		return nil, fmt.Errorf("tag search: %w", err)
	}

	combined := make(map[int64]float64, len(ocr)+len(tags))
	for _, sp := range ocr {
		combined[sp.PhotoID] += sp.Score
	}
	for _, sp := range tags {
		combined[sp.PhotoID] += sp.Score
	}

	list := make([]database.ScoredPhoto, 0, len(combined))
	for id, score := range combined {
		list = append(list, database.ScoredPhoto{PhotoID: id, Score: score})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].PhotoID > list[j].PhotoID
	})
	if len(list) > e.topK {
		list = list[:e.topK]
	}
	return list, nil
}

func (e *Engine) semanticList(ctx context.Context, query string) ([]database.ScoredPhoto, error) {
	emb, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	list, err := e.repo.SearchEmbeddings(ctx, emb.Embedding, e.topK)
	if err != nil {
		return nil, fmt.Errorf("embedding search: %w", err)
	}
	return list, nil
}

func listScores(list []database.ScoredPhoto) map[int64]float64 {
	scores := make(map[int64]float64, len(list))
	for _, sp := range list {
		scores[sp.PhotoID] = sp.Score
	}
	return scores
}

func paginate(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
