package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jasl/photo-index/internal/database"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the processing queue and index state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusOrder lists states in pipeline order for stable output.
var statusOrder = []database.PhotoState{
	database.StatePending,
	database.StatePreprocessing,
	database.StateDetectingObjects,
	database.StateEmbedding,
	database.StateExtractingText,
	database.StateDetectingFaces,
	database.StateHashing,
	database.StateCheckingDuplicates,
	database.StateCompleted,
	database.StatePartial,
	database.StateFailed,
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	counts, err := store.Photos.StateCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count photos: %w", err)
	}

	pairs, err := store.Hashes.CountDuplicatePairs(ctx)
	if err != nil {
		return fmt.Errorf("failed to count duplicate pairs: %w", err)
	}

	migrations, err := store.Pool().MigrationsApplied(ctx)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	total := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tPHOTOS")
	for _, state := range statusOrder {
		n := counts[state]
		total += n
		if n > 0 {
			fmt.Fprintf(w, "%s\t%d\n", state, n)
		}
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nDuplicate pairs: %d\n", pairs)
	fmt.Printf("Schema migrations applied: %d\n", len(migrations))
	return nil
}
