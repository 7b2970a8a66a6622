package translate

import (
	"context"
	"sort"

	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/zoning"
)

// overlayLower computes the overlay between one zone system and the lower
// zoning layer. Tiles carry the zone id in Zone1 and the lower zone id in
// Lower; Mass is overlap area. Excluded zone-system ids are returned so
// they can reach the missing-zone report; excluded lower zones simply
// contribute no mass.
func overlayLower(ctx context.Context, zones []zoning.Zone, lower *zoning.LowerZoneSystem, workers int) (tiles []model.Tile, excluded []string, err error) {
	raw, excluded, _, err := Overlay(ctx, zones, lower.Zones, workers)
	if err != nil {
		return nil, nil, err
	}
	tiles = make([]model.Tile, len(raw))
	for i, t := range raw {
		tiles[i] = model.Tile{Zone1: t.Zone1, Lower: t.Zone2, Mass: t.Mass}
	}
	return tiles, excluded, nil
}

// lowerShare is one zone's fractional coverage of a lower zone.
type lowerShare struct {
	zone string
	frac float64
}

// aggregateMass combines both zone-to-lower overlays into zone-pair mass
// tiles. For every lower zone, its attribute weight is split between zone
// pairs in proportion to the product of each side's area fraction of that
// lower zone:
//
//	mass(z1, z2) = sum over lower l of weight(l) * frac(z1, l) * frac(z2, l)
//
// Lower zones with no weight, zero weight or degenerate area contribute
// nothing.
func aggregateMass(ov1, ov2 []model.Tile, lower *zoning.LowerZoneSystem) []model.Tile {
	shares1 := lowerShares(ov1, lower)
	shares2 := lowerShares(ov2, lower)

	type pair struct{ z1, z2 string }
	acc := make(map[pair]float64)
	for id, s1 := range shares1 {
		w := lower.Weight(id)
		if w <= 0 {
			continue
		}
		s2, ok := shares2[id]
		if !ok {
			continue
		}
		for _, a := range s1 {
			for _, b := range s2 {
				acc[pair{a.zone, b.zone}] += w * a.frac * b.frac
			}
		}
	}

	tiles := make([]model.Tile, 0, len(acc))
	for p, mass := range acc {
		if mass <= 0 {
			continue
		}
		tiles = append(tiles, model.Tile{Zone1: p.z1, Zone2: p.z2, Mass: mass})
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Zone1 != tiles[j].Zone1 {
			return tiles[i].Zone1 < tiles[j].Zone1
		}
		return tiles[i].Zone2 < tiles[j].Zone2
	})
	return tiles
}

// lowerShares indexes zone-to-lower tiles by lower zone id, converting
// each tile's overlap area into a fraction of the lower zone's area.
func lowerShares(ov []model.Tile, lower *zoning.LowerZoneSystem) map[string][]lowerShare {
	shares := make(map[string][]lowerShare)
	for _, t := range ov {
		lz, ok := lower.Zone(t.Lower)
		if !ok || lz.Area <= 0 {
			continue
		}
		shares[t.Lower] = append(shares[t.Lower], lowerShare{zone: t.Zone1, frac: t.Mass / lz.Area})
	}
	return shares
}
