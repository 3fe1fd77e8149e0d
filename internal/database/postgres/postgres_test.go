//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jasl/photo-index/internal/config"
	"github.com/jasl/photo-index/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	store := NewStore(pool)
	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return store, cleanup
}

func mustCreatePhoto(t *testing.T, store *Store, path string) int64 {
	t.Helper()
	id, err := store.Photos.Create(context.Background(), path, path)
	if err != nil {
		t.Fatalf("Failed to create photo: %v", err)
	}
	return id
}

func mustComplete(t *testing.T, store *Store, id int64) {
	t.Helper()
	if err := store.Photos.Finish(context.Background(), id, database.StateCompleted, ""); err != nil {
		t.Fatalf("Failed to finish photo: %v", err)
	}
}

func TestPhotoLifecycle(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		id := mustCreatePhoto(t, store, "/photos/a.jpg")

		photo, err := store.Photos.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get photo: %v", err)
		}
		if photo == nil {
			t.Fatal("Expected photo, got nil")
		}
		if photo.State != database.StatePending {
			t.Errorf("Expected pending state, got %s", photo.State)
		}

		byPath, err := store.Photos.GetByPath(ctx, "/photos/a.jpg")
		if err != nil {
			t.Fatalf("Failed to get photo by path: %v", err)
		}
		if byPath == nil || byPath.ID != id {
			t.Errorf("GetByPath returned %+v, want id %d", byPath, id)
		}
	})

	t.Run("DuplicatePathRejected", func(t *testing.T) {
		mustCreatePhoto(t, store, "/photos/dup.jpg")
		if _, err := store.Photos.Create(ctx, "/photos/dup.jpg", "dup.jpg"); err == nil {
			t.Error("Expected unique violation for duplicate path")
		}
	})

	t.Run("ClaimNextPending", func(t *testing.T) {
		id := mustCreatePhoto(t, store, "/photos/claim.jpg")

		for {
			claimed, err := store.Photos.ClaimNextPending(ctx)
			if errors.Is(err, database.ErrNoPendingPhotos) {
				t.Fatal("Queue drained before claiming the new photo")
			}
			if err != nil {
				t.Fatalf("Failed to claim photo: %v", err)
			}
			if claimed.State != database.StatePreprocessing {
				t.Errorf("Claimed photo state = %s, want preprocessing", claimed.State)
			}
			if claimed.ID == id {
				break
			}
		}

		// Drain the rest, then the queue must report empty.
		for {
			_, err := store.Photos.ClaimNextPending(ctx)
			if errors.Is(err, database.ErrNoPendingPhotos) {
				break
			}
			if err != nil {
				t.Fatalf("Failed to claim photo: %v", err)
			}
		}
	})

	t.Run("ForwardOnlyStates", func(t *testing.T) {
		id := mustCreatePhoto(t, store, "/photos/states.jpg")

		if err := store.Photos.AdvanceState(ctx, id, database.StateEmbedding); err != nil {
			t.Fatalf("Failed to advance state: %v", err)
		}
		err := store.Photos.AdvanceState(ctx, id, database.StatePreprocessing)
		if !errors.Is(err, database.ErrStateRegression) {
			t.Errorf("Expected ErrStateRegression, got %v", err)
		}

		if err := store.Photos.Finish(ctx, id, database.StatePartial, "ocr: timeout"); err != nil {
			t.Fatalf("Failed to finish photo: %v", err)
		}
		photo, _ := store.Photos.GetByID(ctx, id)
		if photo.State != database.StatePartial {
			t.Errorf("State = %s, want partial", photo.State)
		}
		if photo.ProcessedAt == nil {
			t.Error("ProcessedAt not set on finish")
		}
		if photo.ErrorMessage != "ocr: timeout" {
			t.Errorf("ErrorMessage = %q", photo.ErrorMessage)
		}

		if err := store.Photos.ResetForReprocessing(ctx, id); err != nil {
			t.Fatalf("Failed to reset photo: %v", err)
		}
		photo, _ = store.Photos.GetByID(ctx, id)
		if photo.State != database.StatePending || photo.ErrorMessage != "" {
			t.Errorf("After reset: state=%s error=%q", photo.State, photo.ErrorMessage)
		}
	})
}

func TestTagRepository(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	id := mustCreatePhoto(t, store, "/photos/tags.jpg")

	detections := []database.DetectedTag{
		{Tag: "person", Confidence: 0.97, BBox: &database.BBox{X1: 0, Y1: 0, X2: 100, Y2: 200}},
		{Tag: "person", Confidence: 0.93, BBox: &database.BBox{X1: 150, Y1: 0, X2: 260, Y2: 210}},
		{Tag: "book", Confidence: 0.61},
	}
	uniqueTags := []database.PhotoTag{
		{Tag: "person", Confidence: 0.97},
		{Tag: "book", Confidence: 0.61},
	}

	if err := store.Tags.ReplaceDetections(ctx, id, detections, uniqueTags); err != nil {
		t.Fatalf("Failed to replace detections: %v", err)
	}

	got, err := store.Tags.ListPhotoTags(ctx, id)
	if err != nil {
		t.Fatalf("Failed to list tags: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Got %d tags, want 2", len(got))
	}
	if got[0].Tag != "person" || got[0].Confidence != 0.97 {
		t.Errorf("Top tag = %+v", got[0])
	}

	instances, err := store.Tags.ListDetections(ctx, id)
	if err != nil {
		t.Fatalf("Failed to list detections: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("Got %d detections, want 3", len(instances))
	}
	if instances[0].BBox == nil || instances[0].BBox.X2 != 100 {
		t.Errorf("BBox round-trip failed: %+v", instances[0].BBox)
	}

	// Replacing again must not accumulate rows.
	if err := store.Tags.ReplaceDetections(ctx, id, detections[:1], uniqueTags[:1]); err != nil {
		t.Fatalf("Failed to replace detections: %v", err)
	}
	got, _ = store.Tags.ListPhotoTags(ctx, id)
	if len(got) != 1 {
		t.Errorf("After replace: %d tags, want 1", len(got))
	}
}

func TestEmbeddingRepository(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	id := mustCreatePhoto(t, store, "/photos/emb.jpg")

	embedding := make([]float32, 1024)
	for i := range embedding {
		embedding[i] = float32(i) / 1024.0
	}

	if err := store.Embeddings.Replace(ctx, id, embedding, "ViT-H-14/laion2b_s32b_b79k"); err != nil {
		t.Fatalf("Failed to save embedding: %v", err)
	}

	got, err := store.Embeddings.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get embedding: %v", err)
	}
	if got == nil {
		t.Fatal("Expected embedding, got nil")
	}
	if got.Dim != 1024 || len(got.Embedding) != 1024 {
		t.Errorf("Dim = %d, len = %d", got.Dim, len(got.Embedding))
	}

	// Upsert replaces rather than duplicates.
	if err := store.Embeddings.Replace(ctx, id, embedding, "ViT-H-14/laion2b_s32b_b79k"); err != nil {
		t.Fatalf("Failed to re-save embedding: %v", err)
	}
	count, err := store.Embeddings.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count embeddings: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

func TestOCRRepository(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	id := mustCreatePhoto(t, store, "/photos/ocr.jpg")

	if err := store.OCR.Replace(ctx, id, "happy birthday banner", "en"); err != nil {
		t.Fatalf("Failed to save ocr: %v", err)
	}
	rec, err := store.OCR.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get ocr: %v", err)
	}
	if rec == nil || rec.Text != "happy birthday banner" {
		t.Fatalf("OCR record = %+v", rec)
	}

	// Empty text removes the row.
	if err := store.OCR.Replace(ctx, id, "   ", "en"); err != nil {
		t.Fatalf("Failed to replace with empty text: %v", err)
	}
	rec, err = store.OCR.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get ocr: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected no record after empty replace, got %+v", rec)
	}
}

func TestHashAndDuplicates(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	a := mustCreatePhoto(t, store, "/photos/h1.jpg")
	b := mustCreatePhoto(t, store, "/photos/h2.jpg")

	hash := "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff"
	if err := store.Hashes.Replace(ctx, a, hash, 72.5); err != nil {
		t.Fatalf("Failed to save hash: %v", err)
	}
	if err := store.Hashes.Replace(ctx, b, hash, 68.0); err != nil {
		t.Fatalf("Failed to save hash: %v", err)
	}

	others, err := store.Hashes.ListOthers(ctx, a)
	if err != nil {
		t.Fatalf("Failed to list hashes: %v", err)
	}
	if len(others) != 1 || others[0].PhotoID != b {
		t.Fatalf("ListOthers = %+v", others)
	}

	// Pair order is normalized; the reversed insert hits the same row.
	if err := store.Hashes.UpsertDuplicate(ctx, b, a, 0); err != nil {
		t.Fatalf("Failed to upsert duplicate: %v", err)
	}
	if err := store.Hashes.UpsertDuplicate(ctx, a, b, 3); err != nil {
		t.Fatalf("Failed to upsert duplicate again: %v", err)
	}

	pairs, err := store.Hashes.ListDuplicates(ctx, a)
	if err != nil {
		t.Fatalf("Failed to list duplicates: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("Got %d pairs, want 1", len(pairs))
	}
	if pairs[0].PhotoID1 != a || pairs[0].PhotoID2 != b {
		t.Errorf("Pair not normalized: %+v", pairs[0])
	}
	if pairs[0].HammingDistance != 0 {
		t.Errorf("Existing pair distance overwritten: %d", pairs[0].HammingDistance)
	}
}

func TestCategorySeedIdempotent(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	mappings := []database.CategoryMapping{
		{Name: "animals", Description: "Pets and wildlife", Tags: []string{"dog", "cat"}},
		{Name: "vehicles", Description: "Things that move", Tags: []string{"car"}},
	}

	for i := 0; i < 2; i++ {
		if err := store.Categories.Seed(ctx, mappings); err != nil {
			t.Fatalf("Seed run %d failed: %v", i, err)
		}
	}

	categories, err := store.Categories.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list categories: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("Got %d categories, want 2", len(categories))
	}

	resolved, err := store.Categories.TagCategories(ctx, []string{"dog", "car", "unmapped"})
	if err != nil {
		t.Fatalf("Failed to resolve tags: %v", err)
	}
	if len(resolved) != 2 {
		t.Errorf("Resolved %d tags, want 2", len(resolved))
	}
	if _, ok := resolved["unmapped"]; ok {
		t.Error("Unmapped tag should be absent")
	}
}

func TestSearchRepository(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	a := mustCreatePhoto(t, store, "/photos/s1.jpg")
	b := mustCreatePhoto(t, store, "/photos/s2.jpg")
	c := mustCreatePhoto(t, store, "/photos/s3.jpg")

	mustComplete(t, store, a)
	mustComplete(t, store, b)
	// c stays pending so search must never return it.

	if err := store.OCR.Replace(ctx, a, "birthday party invitation", "en"); err != nil {
		t.Fatal(err)
	}
	if err := store.OCR.Replace(ctx, c, "birthday cake recipe", "en"); err != nil {
		t.Fatal(err)
	}

	if err := store.Tags.ReplaceDetections(ctx, b,
		[]database.DetectedTag{{Tag: "birthday cake", Confidence: 0.8}},
		[]database.PhotoTag{{Tag: "birthday cake", Confidence: 0.8}}); err != nil {
		t.Fatal(err)
	}

	t.Run("OCRExcludesUnfinished", func(t *testing.T) {
		results, err := store.Search.SearchOCR(ctx, "birthday", 10)
		if err != nil {
			t.Fatalf("SearchOCR failed: %v", err)
		}
		if len(results) != 1 || results[0].PhotoID != a {
			t.Errorf("SearchOCR = %+v, want only photo %d", results, a)
		}
	})

	t.Run("TagSubstringMatch", func(t *testing.T) {
		results, err := store.Search.SearchTags(ctx, "CAKE", 10)
		if err != nil {
			t.Fatalf("SearchTags failed: %v", err)
		}
		if len(results) != 1 || results[0].PhotoID != b {
			t.Errorf("SearchTags = %+v, want only photo %d", results, b)
		}
	})

	t.Run("EmbeddingOrder", func(t *testing.T) {
		vecA := make([]float32, 1024)
		vecB := make([]float32, 1024)
		vecA[0] = 1
		vecB[1] = 1
		if err := store.Embeddings.Replace(ctx, a, vecA, "m"); err != nil {
			t.Fatal(err)
		}
		if err := store.Embeddings.Replace(ctx, b, vecB, "m"); err != nil {
			t.Fatal(err)
		}

		query := make([]float32, 1024)
		query[0] = 1
		results, err := store.Search.SearchEmbeddings(ctx, query, 10)
		if err != nil {
			t.Fatalf("SearchEmbeddings failed: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Got %d results, want 2", len(results))
		}
		if results[0].PhotoID != a {
			t.Errorf("Nearest photo = %d, want %d", results[0].PhotoID, a)
		}
		if results[0].Score < results[1].Score {
			t.Error("Results not ordered by descending score")
		}
	})

	t.Run("FilterCandidates", func(t *testing.T) {
		if err := store.Categories.Seed(ctx, []database.CategoryMapping{
			{Name: "food", Tags: []string{"birthday cake"}},
		}); err != nil {
			t.Fatal(err)
		}
		resolved, err := store.Categories.TagCategories(ctx, []string{"birthday cake"})
		if err != nil {
			t.Fatal(err)
		}
		catID := resolved["birthday cake"]
		if err := store.Tags.ReplaceDetections(ctx, b,
			[]database.DetectedTag{{Tag: "birthday cake", Confidence: 0.8, CategoryID: &catID}},
			[]database.PhotoTag{{Tag: "birthday cake", Confidence: 0.8, CategoryID: &catID}}); err != nil {
			t.Fatal(err)
		}

		survivors, err := store.Search.FilterCandidates(ctx, []int64{a, b},
			database.SearchFilters{Categories: []string{"food"}})
		if err != nil {
			t.Fatalf("FilterCandidates failed: %v", err)
		}
		if len(survivors) != 1 {
			t.Fatalf("Got %d survivors, want 1", len(survivors))
		}
		if _, ok := survivors[b]; !ok {
			t.Errorf("Photo %d should survive the category filter", b)
		}
	})

	t.Run("HideDuplicates", func(t *testing.T) {
		if err := store.Hashes.UpsertDuplicate(ctx, a, b, 2); err != nil {
			t.Fatal(err)
		}
		survivors, err := store.Search.FilterCandidates(ctx, []int64{a, b},
			database.SearchFilters{HideDuplicates: true})
		if err != nil {
			t.Fatalf("FilterCandidates failed: %v", err)
		}
		lower := a
		if b < a {
			lower = b
		}
		if len(survivors) != 1 {
			t.Fatalf("Got %d survivors, want 1", len(survivors))
		}
		if _, ok := survivors[lower]; !ok {
			t.Errorf("Canonical photo %d should survive", lower)
		}
	})
}
