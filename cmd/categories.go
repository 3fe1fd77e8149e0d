package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Category reference data",
}

var categoriesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed categories and tag mappings from the embedded defaults",
	Long: `Insert the built-in categories and their tag mappings. Existing rows
are kept, so seeding is safe to repeat and never destroys manual edits.`,
	RunE: runCategoriesSeed,
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE:  runCategoriesList,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
	categoriesCmd.AddCommand(categoriesSeedCmd)
	categoriesCmd.AddCommand(categoriesListCmd)
}

func runCategoriesSeed(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mappings := categoryMappings(cfg.Categories)
	if err := store.Categories.Seed(cmd.Context(), mappings); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	fmt.Printf("Seeded %d categories\n", len(mappings))
	return nil
}

func runCategoriesList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	categories, err := store.Categories.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, c := range categories {
		fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Name, c.Description)
	}
	return w.Flush()
}
