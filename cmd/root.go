package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-index",
	Short: "Index and search a personal photo collection",
	Long: `Photo Index watches a directory of photos, runs each one through an
ML processing pipeline (object detection, embeddings, OCR, faces,
perceptual hashing), and serves a searchable read-only gallery.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
