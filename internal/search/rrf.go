package search

import "github.com/jasl/photo-index/internal/database"

// RRFK is the reciprocal rank fusion constant. It is an external contract
// value: changing it changes every hybrid ranking.
const RRFK = 60

// FuseRRF merges ranked lists with reciprocal rank fusion. Each photo's
// fused score is the sum over the lists containing it of 1/(k + rank), with
// rank 1-based within its list. Photos absent from a list contribute
// nothing for that list.
func FuseRRF(k int, lists ...[]database.ScoredPhoto) map[int64]float64 {
	fused := make(map[int64]float64)
	for _, list := range lists {
		for i, sp := range list {
			rank := i + 1
			fused[sp.PhotoID] += 1.0 / float64(k+rank)
		}
	}
	return fused
}
