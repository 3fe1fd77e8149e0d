package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jasl/photo-index/internal/pipeline"
)

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Register photos from a directory as pending",
	Long: `Walk a directory tree and register every supported image file as a
pending photo. Files already known by path are skipped, so scanning is
safe to repeat. Registered photos are processed by 'serve' workers or a
one-shot 'process' run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("reprocess", false, "Also reset already-known photos to pending")
}

func runScan(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	dir := cfg.Photos.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no directory given and PHOTOS_DIR is not set")
	}

	fmt.Printf("Scanning %s...\n", dir)

	// Total file count is unknown until the walk finishes, so use a spinner.
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	reprocess := mustGetBool(cmd, "reprocess")
	ctx := cmd.Context()

	var reset int
	var resetErr error
	stats, err := pipeline.Scan(ctx, store.Photos, dir, cfg.Photos.SupportedFormats,
		func(path string, created bool) {
			_ = bar.Add(1)
			if created || !reprocess || resetErr != nil {
				return
			}
			photo, err := store.Photos.GetByPath(ctx, path)
			if err != nil || photo == nil {
				resetErr = fmt.Errorf("failed to look up %s: %w", path, err)
				return
			}
			if err := store.Photos.ResetForReprocessing(ctx, photo.ID); err != nil {
				resetErr = fmt.Errorf("failed to reset photo %d: %w", photo.ID, err)
				return
			}
			reset++
		})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if resetErr != nil {
		return resetErr
	}

	fmt.Printf("Seen:       %d\n", stats.Seen)
	fmt.Printf("Registered: %d\n", stats.Created)
	if reprocess {
		fmt.Printf("Reset:      %d (known photos back to pending)\n", reset)
	} else {
		fmt.Printf("Skipped:    %d (already known)\n", stats.Skipped)
	}
	return nil
}
