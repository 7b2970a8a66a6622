package translate

import (
	"sort"

	"github.com/transport-futures/zonetrans/internal/model"
)

// detectMissing reports the zones of each system that do not appear in the
// final factor table with any positive factor. This catches every way a
// zone can fall out of the translation: no overlap at all, unrepairable
// geometry, unresolved points, sliver-only overlaps whose partner dropped
// them, and zero-sum normalization failures.
func detectMissing(ids1, ids2 []string, pairs []model.PairFactor) model.MissingReport {
	present1 := make(map[string]bool)
	present2 := make(map[string]bool)
	for _, p := range pairs {
		if p.Forward > 0 || p.Reverse > 0 {
			present1[p.Zone1] = true
			present2[p.Zone2] = true
		}
	}
	return model.MissingReport{
		Zone1: absent(ids1, present1),
		Zone2: absent(ids2, present2),
	}
}

func absent(ids []string, present map[string]bool) []string {
	var missing []string
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
