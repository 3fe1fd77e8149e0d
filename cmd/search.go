package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jasl/photo-index/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed photos from the command line",
	Long: `Run a hybrid keyword + semantic search over completed photos and
print the ranked results. Semantic search needs the inference sidecar
running; use --mode keyword to search without it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("mode", "hybrid", "Search mode: hybrid, keyword, or semantic")
	searchCmd.Flags().Int("limit", 20, "Maximum number of results")
	searchCmd.Flags().String("categories", "", "Comma-separated category names to filter by")
	searchCmd.Flags().Bool("hide-duplicates", false, "Collapse near-duplicates to one photo per group")
}

func runSearch(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mode, err := search.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}

	var categories []string
	for _, c := range strings.Split(mustGetString(cmd, "categories"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	engine := search.NewEngine(store.Search, newInferenceClient(cfg), cfg.Search.TopK, cfg.Search.RRFK)
	results, err := engine.Search(cmd.Context(), search.Params{
		Query:          strings.Join(args, " "),
		Mode:           mode,
		Categories:     categories,
		HideDuplicates: mustGetBool(cmd, "hide-duplicates"),
		Limit:          mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tID\tFILE")
	for i, res := range results {
		photo, err := store.Photos.GetByID(cmd.Context(), res.PhotoID)
		if err != nil || photo == nil {
			continue
		}
		fmt.Fprintf(w, "%d\t%.4f\t%d\t%s\n", i+1, res.Score, photo.ID, photo.FilePath)
	}
	return w.Flush()
}
