package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jasl/photo-index/internal/database"
)

// ScanStats summarizes one directory scan.
type ScanStats struct {
	Seen    int
	Created int
	Skipped int
}

// Scan walks dir recursively and registers every supported image file not
// yet known to the index. Known paths are skipped, so scanning is safe to
// repeat. The optional onFile callback receives each candidate path and
// whether it was newly registered.
func Scan(ctx context.Context, photos database.PhotoRepository, dir string, supportedFormats []string, onFile func(path string, created bool)) (*ScanStats, error) {
	supported := make(map[string]bool, len(supportedFormats))
	for _, ext := range supportedFormats {
		supported["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	stats := &ScanStats{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !supported[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		stats.Seen++
		existing, err := photos.GetByPath(ctx, path)
		if err != nil {
			return fmt.Errorf("look up %s: %w", path, err)
		}
		if existing != nil {
			stats.Skipped++
			if onFile != nil {
				onFile(path, false)
			}
			return nil
		}

		if _, err := photos.Create(ctx, path, filepath.Base(path)); err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
		stats.Created++
		if onFile != nil {
			onFile(path, true)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return stats, nil
}
