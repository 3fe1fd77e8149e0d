package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jasl/photo-index/internal/database"
	"github.com/jasl/photo-index/internal/database/postgres"
	"github.com/jasl/photo-index/internal/pipeline"
	"github.com/jasl/photo-index/internal/search"
	"github.com/jasl/photo-index/internal/web"
	"github.com/jasl/photo-index/internal/web/handlers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gallery web server and processing workers",
	Long: `Start the Photo Index web server.
The server exposes the read-only gallery API (photo browsing, hybrid
search, stats) and runs the processing workers in the background so
newly scanned photos are picked up while it is up.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("no-workers", false, "Serve the gallery without running processing workers")
}

// initSemanticHNSW loads or builds the in-memory HNSW index that serves
// semantic search without a database scan. Failures fall back to pgvector
// queries, which are correct but slower.
func initSemanticHNSW(ctx context.Context, store *postgres.Store, indexPath string) *database.HNSWIndex {
	index := database.NewHNSWIndex()

	if indexPath != "" {
		fmt.Printf("Loading semantic HNSW index from %s...\n", indexPath)
		if err := index.Load(indexPath); err != nil {
			fmt.Printf("Warning: failed to load HNSW index: %v\n", err)
		}
	}

	if index.IsEmpty() {
		fmt.Printf("Building in-memory HNSW index from stored embeddings...\n")
		embeddings, err := store.Embeddings.All(ctx)
		if err != nil {
			fmt.Printf("Warning: failed to fetch embeddings: %v\n", err)
			fmt.Printf("Semantic search will use PostgreSQL queries (slower)\n")
			return index
		}
		if err := index.BuildFromEmbeddings(embeddings); err != nil {
			fmt.Printf("Warning: failed to build HNSW index: %v\n", err)
			return index
		}
		index.SetPath(indexPath)
	}

	fmt.Printf("Semantic HNSW index ready with %d embeddings\n", index.Count())
	return index
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Categories.Seed(ctx, categoryMappings(cfg.Categories)); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	var searchRepo database.SearchRepository = store.Search
	var index *database.HNSWIndex
	if cfg.Search.HNSWEnabled {
		index = initSemanticHNSW(ctx, store, cfg.Search.HNSWIndexPath)
		searchRepo = database.NewIndexedSearch(store.Search, index)
	}

	client := newInferenceClient(cfg)
	engine := search.NewEngine(searchRepo, client, cfg.Search.TopK, cfg.Search.RRFK)

	h := web.Handlers{
		Photos:     handlers.NewPhotosHandler(store.Photos, store.Tags, store.OCR, store.Faces, store.Hashes, cfg.Search.PageSize),
		Search:     handlers.NewSearchHandler(engine, store.Photos, cfg.Search.PageSize),
		Stats:      handlers.NewStatsHandler(store.Photos, store.Hashes),
		Categories: handlers.NewCategoriesHandler(store.Categories),
	}

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(h, host, port)

	if !mustGetBool(cmd, "no-workers") {
		processor := newProcessor(store, cfg)
		pool := pipeline.NewWorkerPool(processor, cfg.Processing.Workers,
			time.Duration(cfg.Processing.PollIntervalSec)*time.Second)
		go pool.Run(ctx)
		fmt.Printf("Started %d processing workers\n", cfg.Processing.Workers)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		if index != nil {
			if err := index.Save(); err != nil {
				fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Photo Index gallery on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
