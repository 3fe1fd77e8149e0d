package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jasl/photo-index/internal/database"
	"github.com/jasl/photo-index/internal/search"
)

type fakePhotos struct {
	byID   map[int64]*database.Photo
	recent []database.Photo
	counts map[database.PhotoState]int
}

func (f *fakePhotos) GetByID(_ context.Context, id int64) (*database.Photo, error) {
	return f.byID[id], nil
}

func (f *fakePhotos) ListRecent(_ context.Context, limit, offset int) ([]database.Photo, error) {
	if offset >= len(f.recent) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.recent) {
		end = len(f.recent)
	}
	return f.recent[offset:end], nil
}

func (f *fakePhotos) StateCounts(_ context.Context) (map[database.PhotoState]int, error) {
	return f.counts, nil
}

type fakeTags struct{ tags []database.PhotoTag }

func (f *fakeTags) ListPhotoTags(context.Context, int64) ([]database.PhotoTag, error) {
	return f.tags, nil
}

type fakeOCR struct{ rec *database.OCRRecord }

func (f *fakeOCR) Get(context.Context, int64) (*database.OCRRecord, error) {
	return f.rec, nil
}

type fakeFaces struct{ count int }

func (f *fakeFaces) CountForPhoto(context.Context, int64) (int, error) {
	return f.count, nil
}

type fakeDuplicates struct {
	pairs []database.DuplicatePair
}

func (f *fakeDuplicates) ListDuplicates(context.Context, int64) ([]database.DuplicatePair, error) {
	return f.pairs, nil
}

func (f *fakeDuplicates) CountDuplicatePairs(context.Context) (int, error) {
	return len(f.pairs), nil
}

type fakeSearcher struct {
	lastParams search.Params
	results    []search.Result
}

func (f *fakeSearcher) Search(_ context.Context, params search.Params) ([]search.Result, error) {
	f.lastParams = params
	return f.results, nil
}

func testPhoto(id int64, state database.PhotoState) *database.Photo {
	return &database.Photo{
		ID:        id,
		FilePath:  "/photos/p.jpg",
		Filename:  "p.jpg",
		State:     state,
		CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Width:     800,
		Height:    600,
		FileSize:  1234,
	}
}

func doRequest(t *testing.T, router *chi.Mux, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)

	rec := doRequest(t, r, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func newPhotosRouter(h *PhotosHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/photos", h.List)
	r.Get("/photos/{id}", h.Get)
	r.Get("/photos/{id}/thumbnail", h.Thumbnail)
	return r
}

func TestPhotosList(t *testing.T) {
	photos := &fakePhotos{recent: []database.Photo{
		*testPhoto(2, database.StateCompleted),
		*testPhoto(1, database.StatePartial),
	}}
	h := NewPhotosHandler(photos, &fakeTags{}, &fakeOCR{}, &fakeFaces{}, &fakeDuplicates{}, 50)
	r := newPhotosRouter(h)

	rec := doRequest(t, r, http.MethodGet, "/photos?page=1&page_size=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Page   int         `json:"page"`
		Photos []photoView `json:"photos"`
	}
	decodeBody(t, rec, &body)
	if len(body.Photos) != 2 {
		t.Fatalf("got %d photos", len(body.Photos))
	}
	if body.Photos[0].ID != 2 {
		t.Errorf("first photo id = %d, want newest first", body.Photos[0].ID)
	}
	if body.Photos[0].ThumbnailURL != "/api/v1/photos/2/thumbnail" {
		t.Errorf("thumbnail url = %s", body.Photos[0].ThumbnailURL)
	}
}

func TestPhotoGet(t *testing.T) {
	catID := int64(3)
	photos := &fakePhotos{byID: map[int64]*database.Photo{
		7: testPhoto(7, database.StateCompleted),
	}}
	h := NewPhotosHandler(photos,
		&fakeTags{tags: []database.PhotoTag{{Tag: "dog", Confidence: 0.9, CategoryID: &catID}}},
		&fakeOCR{rec: &database.OCRRecord{Text: "hello"}},
		&fakeFaces{count: 2},
		&fakeDuplicates{pairs: []database.DuplicatePair{{PhotoID1: 5, PhotoID2: 7, HammingDistance: 4}}},
		50)
	r := newPhotosRouter(h)

	rec := doRequest(t, r, http.MethodGet, "/photos/7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body photoDetail
	decodeBody(t, rec, &body)
	if body.ID != 7 || len(body.Tags) != 1 || body.Tags[0].Tag != "dog" {
		t.Errorf("body = %+v", body)
	}
	if body.OCRText != "hello" {
		t.Errorf("ocr text = %q", body.OCRText)
	}
	if body.FaceCount != 2 {
		t.Errorf("face count = %d", body.FaceCount)
	}
	if len(body.Duplicates) != 1 || body.Duplicates[0].PhotoID != 5 {
		t.Errorf("duplicates = %+v", body.Duplicates)
	}
}

func TestPhotoGet_NotFound(t *testing.T) {
	h := NewPhotosHandler(&fakePhotos{byID: map[int64]*database.Photo{}},
		&fakeTags{}, &fakeOCR{}, &fakeFaces{}, &fakeDuplicates{}, 50)
	r := newPhotosRouter(h)

	if rec := doRequest(t, r, http.MethodGet, "/photos/99"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, r, http.MethodGet, "/photos/abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestThumbnail(t *testing.T) {
	dir := t.TempDir()
	thumbPath := filepath.Join(dir, "p_thumb.jpg")
	if err := os.WriteFile(thumbPath, []byte("jpegdata"), 0o600); err != nil {
		t.Fatal(err)
	}

	photo := testPhoto(1, database.StateCompleted)
	photo.ThumbnailPath = thumbPath
	missing := testPhoto(2, database.StateCompleted)
	missing.ThumbnailPath = filepath.Join(dir, "gone.jpg")

	h := NewPhotosHandler(&fakePhotos{byID: map[int64]*database.Photo{1: photo, 2: missing}},
		&fakeTags{}, &fakeOCR{}, &fakeFaces{}, &fakeDuplicates{}, 50)
	r := newPhotosRouter(h)

	rec := doRequest(t, r, http.MethodGet, "/photos/1/thumbnail")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "jpegdata" {
		t.Errorf("body = %q", rec.Body.String())
	}

	if rec := doRequest(t, r, http.MethodGet, "/photos/2/thumbnail"); rec.Code != http.StatusNotFound {
		t.Errorf("missing file: status = %d, want 404", rec.Code)
	}
}

func TestSearchHandler(t *testing.T) {
	photos := &fakePhotos{byID: map[int64]*database.Photo{
		1: testPhoto(1, database.StateCompleted),
		2: testPhoto(2, database.StateCompleted),
	}}
	engine := &fakeSearcher{results: []search.Result{
		{PhotoID: 1, Score: 0.032},
		{PhotoID: 2, Score: 0.016},
	}}
	h := NewSearchHandler(engine, photos, 50)
	r := chi.NewRouter()
	r.Get("/search", h.Search)

	rec := doRequest(t, r, http.MethodGet,
		"/search?q=dog+beach&mode=hybrid&categories=animals,nature&hide_duplicates=true&from=2026-01-01&page=2&page_size=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	p := engine.lastParams
	if p.Query != "dog beach" || p.Mode != search.ModeHybrid {
		t.Errorf("params = %+v", p)
	}
	if len(p.Categories) != 2 || p.Categories[0] != "animals" {
		t.Errorf("categories = %v", p.Categories)
	}
	if !p.HideDuplicates || p.DateFrom == nil || p.DateTo != nil {
		t.Errorf("filters = %+v", p)
	}
	if p.Limit != 10 || p.Offset != 10 {
		t.Errorf("pagination: limit = %d, offset = %d", p.Limit, p.Offset)
	}

	var body struct {
		Count   int         `json:"count"`
		Results []searchHit `json:"results"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.Results) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Results[0].ID != 1 || body.Results[0].Score != 0.032 {
		t.Errorf("results[0] = %+v", body.Results[0])
	}
}

func TestSearchHandler_BadInput(t *testing.T) {
	h := NewSearchHandler(&fakeSearcher{}, &fakePhotos{}, 50)
	r := chi.NewRouter()
	r.Get("/search", h.Search)

	if rec := doRequest(t, r, http.MethodGet, "/search?q=x&mode=fuzzy"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad mode: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, r, http.MethodGet, "/search?q=x&from=yesterday"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d, want 400", rec.Code)
	}
}

func TestStats(t *testing.T) {
	photos := &fakePhotos{counts: map[database.PhotoState]int{
		database.StateCompleted: 10,
		database.StatePartial:   2,
		database.StatePending:   5,
	}}
	duplicates := &fakeDuplicates{pairs: []database.DuplicatePair{{PhotoID1: 1, PhotoID2: 2}}}
	h := NewStatsHandler(photos, duplicates)
	r := chi.NewRouter()
	r.Get("/stats", h.Stats)

	rec := doRequest(t, r, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		TotalPhotos    int            `json:"total_photos"`
		States         map[string]int `json:"states"`
		DuplicatePairs int            `json:"duplicate_pairs"`
	}
	decodeBody(t, rec, &body)
	if body.TotalPhotos != 17 {
		t.Errorf("total = %d, want 17", body.TotalPhotos)
	}
	if body.States["completed"] != 10 {
		t.Errorf("states = %v", body.States)
	}
	if body.DuplicatePairs != 1 {
		t.Errorf("pairs = %d", body.DuplicatePairs)
	}
}

func TestCategoriesList(t *testing.T) {
	h := NewCategoriesHandler(categoryLister{})
	r := chi.NewRouter()
	r.Get("/categories", h.List)

	rec := doRequest(t, r, http.MethodGet, "/categories")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Categories []categoryView `json:"categories"`
	}
	decodeBody(t, rec, &body)
	if len(body.Categories) != 2 || body.Categories[0].Name != "animals" {
		t.Errorf("categories = %+v", body.Categories)
	}
}

type categoryLister struct{}

func (categoryLister) List(context.Context) ([]database.Category, error) {
	return []database.Category{
		{ID: 1, Name: "animals", Description: "Pets and wildlife"},
		{ID: 2, Name: "food"},
	}, nil
}
