package cmd

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jasl/photo-index/internal/database"
	"github.com/jasl/photo-index/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process all pending photos and exit",
	Long: `Run the processing pipeline over every pending photo until the queue
is drained, then exit. Use 'serve' instead to keep workers running
alongside the gallery.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Int("workers", 0, "Number of parallel workers (defaults to PIPELINE_WORKERS)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()

	if err := store.Categories.Seed(ctx, categoryMappings(cfg.Categories)); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	counts, err := store.Photos.StateCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending photos: %w", err)
	}
	pending := counts[database.StatePending]
	if pending == 0 {
		fmt.Println("No pending photos")
		return nil
	}

	workers := cfg.Processing.Workers
	if n := mustGetInt(cmd, "workers"); n > 0 {
		workers = n
	}

	fmt.Printf("Processing %d pending photos with %d workers\n\n", pending, workers)

	bar := progressbar.NewOptions(pending,
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var completed, partial, failed int
	pool := pipeline.NewWorkerPool(newProcessor(store, cfg), workers,
		time.Duration(cfg.Processing.PollIntervalSec)*time.Second)

	err = pool.DrainQueue(ctx, func(result *pipeline.Result) {
		_ = bar.Add(1)
		switch result.State {
		case database.StateCompleted:
			completed++
		case database.StatePartial:
			partial++
		case database.StateFailed:
			failed++
		}
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	fmt.Printf("Completed: %d\n", completed)
	fmt.Printf("Partial:   %d\n", partial)
	fmt.Printf("Failed:    %d\n", failed)
	return nil
}
