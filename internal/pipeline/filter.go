package pipeline

import (
	"sort"
	"strings"

	"github.com/jasl/photo-index/internal/config"
	"github.com/jasl/photo-index/internal/inference"
)

// FilterDetections drops noisy detections before they are persisted. Tags
// listed as noisy (detectors emit "person" for almost anything) must clear a
// minimum confidence and a minimum share of the image area, and only the
// top instances per tag survive. Other tags pass through untouched.
func FilterDetections(detections []inference.Detection, imageWidth, imageHeight int, cfg *config.FilteringConfig) []inference.Detection {
	noisy := make(map[string]bool, len(cfg.NoisyTags))
	for _, tag := range cfg.NoisyTags {
		noisy[strings.ToLower(tag)] = true
	}

	kept := make([]inference.Detection, 0, len(detections))
	noisyKept := make(map[string][]inference.Detection)

	for _, d := range detections {
		if !noisy[strings.ToLower(d.Tag)] {
			kept = append(kept, d)
			continue
		}

		if d.Confidence < cfg.MinConfidence {
			continue
		}
		if d.BBox != nil && d.BBox.AreaRatio(imageWidth, imageHeight) < cfg.MinAreaRatio {
			continue
		}
		key := strings.ToLower(d.Tag)
		noisyKept[key] = append(noisyKept[key], d)
	}

	for _, group := range noisyKept {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Confidence > group[j].Confidence
		})
		if cfg.MaxInstances > 0 && len(group) > cfg.MaxInstances {
			group = group[:cfg.MaxInstances]
		}
		kept = append(kept, group...)
	}

	return kept
}

// DedupTags collapses detections to one entry per tag string, keeping the
// maximum confidence. Tag order follows first appearance in the input.
func DedupTags(detections []inference.Detection) []inference.Detection {
	best := make(map[string]float64)
	var order []string

	for _, d := range detections {
		if current, seen := best[d.Tag]; !seen {
			best[d.Tag] = d.Confidence
			order = append(order, d.Tag)
		} else if d.Confidence > current {
			best[d.Tag] = d.Confidence
		}
	}

	unique := make([]inference.Detection, 0, len(order))
	for _, tag := range order {
		unique = append(unique, inference.Detection{Tag: tag, Confidence: best[tag]})
	}
	return unique
}
