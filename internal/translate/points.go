package translate

import (
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"go.uber.org/zap"

	"github.com/transport-futures/zonetrans/internal/zoning"
)

// pointZone is a zone treated as a dimensionless location: either a true
// point geometry or a polygon smaller than the point tolerance, collapsed
// to its centroid.
type pointZone struct {
	id string
	pt geom.Point
}

// splitPointZones partitions a zone list into area zones and point zones.
// When handling is disabled, true point geometries are still removed from
// the area set (they cannot take part in overlay) but no point zones are
// produced, so they surface in the missing-zone report.
func splitPointZones(zones []zoning.Zone, enabled bool, tolerance float64) (area []zoning.Zone, points []pointZone) {
	var skipped int
	for _, z := range zones {
		switch {
		case z.IsPoint():
			if enabled {
				points = append(points, pointZone{id: z.ID, pt: *z.Point})
			} else {
				skipped++
			}
		case enabled && z.Area < tolerance:
			points = append(points, pointZone{id: z.ID, pt: z.Centroid()})
		default:
			area = append(area, z)
		}
	}
	if skipped > 0 {
		zap.L().Warn("point geometries present but point handling is disabled",
			zap.Int("skipped", skipped))
	}
	return area, points
}

// resolvePoints assigns each point zone to the single opposite-system zone
// strictly containing it. Points on a boundary, outside all zones, or
// inside more than one (overlapping input polygons) are unresolved.
func resolvePoints(points []pointZone, opposite []zoning.Zone) (pairs [][2]string, unresolved []string) {
	if len(points) == 0 {
		return nil, nil
	}
	tree := rtree.NewTree(25, 50)
	for _, z := range opposite {
		if z.Geom == nil {
			continue
		}
		tree.Insert(&indexedZone{Polygonal: z.Geom, id: z.ID})
	}

	for _, p := range points {
		b := &geom.Bounds{Min: p.pt, Max: p.pt}
		var container string
		var inside int
		var onEdge bool
		for _, item := range tree.SearchIntersect(b) {
			z := item.(*indexedZone)
			switch p.pt.Within(z.Polygonal) {
			case geom.Inside:
				inside++
				container = z.id
			case geom.OnEdge:
				onEdge = true
			}
		}
		if inside == 1 && !onEdge {
			pairs = append(pairs, [2]string{p.id, container})
			continue
		}
		unresolved = append(unresolved, p.id)
	}
	if len(unresolved) > 0 {
		zap.L().Warn("point zones could not be resolved to a containing zone",
			zap.Int("count", len(unresolved)),
			zap.Strings("ids", unresolved),
		)
	}
	return pairs, unresolved
}
