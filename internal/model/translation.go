package model

// Mode selects how tile mass is computed during a translation.
type Mode string

const (
	// ModeSpatial weights correspondence by raw overlap area.
	ModeSpatial Mode = "spatial"
	// ModeWeighted weights correspondence by attribute mass carried on a
	// lower zoning layer (e.g. population).
	ModeWeighted Mode = "weighted"
)

// Tile is the intersection of one zone from each side of a translation.
// Lower is set only for zone-to-lower-zoning overlays and for weighted
// tiles that have not yet been aggregated. Mass is overlap area in spatial
// mode and attribute mass in weighted mode.
type Tile struct {
	Zone1 string  `json:"zone1"`
	Zone2 string  `json:"zone2"`
	Lower string  `json:"lower,omitempty"`
	Mass  float64 `json:"mass"`
}

// PairFactor holds both correspondence factors for one zone pair.
// Forward is the zone-1 to zone-2 factor, Reverse the zone-2 to zone-1
// factor. A zero value means the pair carries no factor in that direction.
type PairFactor struct {
	Zone1   string  `json:"zone1"`
	Zone2   string  `json:"zone2"`
	Forward float64 `json:"forward"`
	Reverse float64 `json:"reverse"`
}

// MissingReport lists the zone ids of each system that received no
// correspondence at all, plus point zones that could not be resolved by
// containment. It is surfaced as a warning, never embedded in the factor
// table.
type MissingReport struct {
	Zone1 []string `json:"zone1"`
	Zone2 []string `json:"zone2"`
}

// Empty reports whether no zones are missing on either side.
func (m MissingReport) Empty() bool {
	return len(m.Zone1) == 0 && len(m.Zone2) == 0
}

// Result is the full output of one translation run.
type Result struct {
	Zone1Name string         `json:"zone1_name"`
	Zone2Name string         `json:"zone2_name"`
	Mode      Mode           `json:"mode"`
	Method    string         `json:"method,omitempty"` // weighting method name, weighted mode only
	Pairs     []PairFactor   `json:"pairs"`
	Missing   MissingReport  `json:"missing"`
	CacheHit  bool           `json:"cache_hit"`
}
