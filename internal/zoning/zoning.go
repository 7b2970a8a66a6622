// Package zoning holds the zone system data model and the shapefile/CSV
// loaders that construct it. Zone systems are built once per run and are
// immutable afterwards.
package zoning

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// Zone is a single uniquely-identified zone. Geom is nil only for zones
// supplied through a dedicated point layer; such zones carry a Point
// instead and are excluded from area overlay.
type Zone struct {
	ID    string
	Geom  geom.Polygonal
	Point *geom.Point
	Area  float64
}

// IsPoint reports whether the zone was supplied as a true point geometry.
func (z Zone) IsPoint() bool { return z.Point != nil && z.Geom == nil }

// Centroid returns the zone's representative coordinate: the supplied
// point for point zones, the polygon centroid otherwise.
func (z Zone) Centroid() geom.Point {
	if z.Point != nil {
		return *z.Point
	}
	return z.Geom.Centroid()
}

// ZoneSystem is a named partition of space into uniquely-identified
// polygon (or point) zones sharing one coordinate reference system.
type ZoneSystem struct {
	Name  string
	IDCol string
	Zones []Zone

	byID map[string]int
}

// NewZoneSystem validates and assembles a zone system. Duplicate ids and
// zones with neither polygon nor point geometry are input errors.
func NewZoneSystem(name, idCol string, zones []Zone) (*ZoneSystem, error) {
	if name == "" {
		return nil, eris.New("zoning: zone system name is required")
	}
	byID := make(map[string]int, len(zones))
	for i, z := range zones {
		if z.ID == "" {
			return nil, eris.Errorf("zoning: %s: zone %d has an empty id", name, i)
		}
		if _, dup := byID[z.ID]; dup {
			return nil, eris.Errorf("zoning: %s: duplicate zone id %q", name, z.ID)
		}
		if z.Geom == nil && z.Point == nil {
			return nil, eris.Errorf("zoning: %s: zone %q has no geometry", name, z.ID)
		}
		byID[z.ID] = i
	}
	return &ZoneSystem{Name: name, IDCol: idCol, Zones: zones, byID: byID}, nil
}

// Zone returns the zone with the given id.
func (s *ZoneSystem) Zone(id string) (Zone, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Zone{}, false
	}
	return s.Zones[i], true
}

// IDs returns all zone ids in load order.
func (s *ZoneSystem) IDs() []string {
	ids := make([]string, len(s.Zones))
	for i, z := range s.Zones {
		ids[i] = z.ID
	}
	return ids
}

// Len returns the number of zones.
func (s *ZoneSystem) Len() int { return len(s.Zones) }

// LowerZoneSystem is a zone system carrying attribute weight data, used as
// a refinement surface for weighted translations.
type LowerZoneSystem struct {
	ZoneSystem
	WeightCol  string
	WeightYear int

	// Weights maps zone id to its attribute weight. Ids present in the
	// geometry but absent from the weight data are flagged unweighted and
	// contribute zero mass.
	Weights    map[string]float64
	Unweighted int // geometry ids with no weight value
	Unmatched  int // weight ids with no matching geometry
}

// Weight returns the weight for a lower zone id, zero when unweighted.
func (l *LowerZoneSystem) Weight(id string) float64 { return l.Weights[id] }

// NewLowerZoneSystem joins weight data onto a zone system. Negative
// weights are rejected; unmatched ids on either side are counted but are
// not errors.
func NewLowerZoneSystem(zs *ZoneSystem, weights map[string]float64, weightCol string, year int) (*LowerZoneSystem, error) {
	l := &LowerZoneSystem{
		ZoneSystem: *zs,
		WeightCol:  weightCol,
		WeightYear: year,
		Weights:    make(map[string]float64, len(weights)),
	}
	for id, w := range weights {
		if w < 0 {
			return nil, eris.Errorf("zoning: %s: negative weight %g for id %q", zs.Name, w, id)
		}
		if _, ok := zs.Zone(id); !ok {
			l.Unmatched++
			continue
		}
		l.Weights[id] = w
	}
	for _, z := range zs.Zones {
		if _, ok := l.Weights[z.ID]; !ok {
			l.Unweighted++
		}
	}
	return l, nil
}
