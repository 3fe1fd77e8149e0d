package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jasl/photo-index/internal/fingerprint"
)

var fixHashesCmd = &cobra.Command{
	Use:   "fix-hashes",
	Short: "Repair stored perceptual hashes with a legacy encoding",
	Long: `Scan the stored perceptual hashes and repair rows that predate the
canonical hex encoding. Bit-string hashes (64 '0'/'1' characters) are
packed into hex in place; hashes that cannot be decoded at all are
deleted so the photo can be reprocessed.`,
	RunE: runFixHashes,
}

func init() {
	rootCmd.AddCommand(fixHashesCmd)

	fixHashesCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
}

func runFixHashes(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	dryRun := mustGetBool(cmd, "dry-run")

	hashes, err := store.Hashes.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hashes: %w", err)
	}
	if len(hashes) == 0 {
		fmt.Println("No stored hashes")
		return nil
	}

	bar := progressbar.NewOptions(len(hashes),
		progressbar.OptionSetDescription("Checking hashes"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("hashes"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	var ok, packed, deleted int
	for _, h := range hashes {
		_ = bar.Add(1)

		switch {
		case fingerprint.IsValid(h.Hash):
			ok++

		case fingerprint.IsBitString(h.Hash):
			hex, err := fingerprint.PackBitString(h.Hash)
			if err != nil {
				return fmt.Errorf("failed to pack hash for photo %d: %w", h.PhotoID, err)
			}
			if !dryRun {
				if err := store.Hashes.Update(ctx, h.PhotoID, hex); err != nil {
					return fmt.Errorf("failed to update hash for photo %d: %w", h.PhotoID, err)
				}
			}
			packed++

		default:
			if !dryRun {
				if err := store.Hashes.Delete(ctx, h.PhotoID); err != nil {
					return fmt.Errorf("failed to delete hash for photo %d: %w", h.PhotoID, err)
				}
			}
			deleted++
		}
	}
	_ = bar.Finish()
	fmt.Println()

	if dryRun {
		fmt.Println("Dry run, nothing written")
	}
	fmt.Printf("Valid:   %d\n", ok)
	fmt.Printf("Packed:  %d (bit-string -> hex)\n", packed)
	fmt.Printf("Deleted: %d (undecodable, photo can be reprocessed)\n", deleted)
	return nil
}
