package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [photo-id...]",
	Short: "Reset photos to pending so they run through the pipeline again",
	Long: `Reset one or more photos to the pending state. The next pipeline run
replaces all of their derived rows (tags, embeddings, OCR text, faces,
hashes), so reprocessing after a model upgrade leaves no stale data.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(reprocessCmd)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid photo id %q", arg)
		}
		if err := store.Photos.ResetForReprocessing(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to reset photo %d: %w", id, err)
		}
		fmt.Printf("Photo %d reset to pending\n", id)
	}
	return nil
}
