// Package translate implements the zone correspondence engine: geometric
// overlay, point-zone handling, weighted aggregation, sliver filtering,
// normalization and missing-zone detection. Geometry intersection, area
// and containment math is delegated to github.com/ctessum/geom; this
// package owns candidate pruning and edge-case policy around it.
package translate

import (
	"context"
	"math"
	"runtime"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/zoning"
)

// areaEpsRel is the relative floor below which an overlap is treated as a
// degenerate sliver produced by coordinate rounding and dropped.
const areaEpsRel = 1e-12

// indexedZone is an rtree entry for one repaired zone polygon. The
// embedded geometry satisfies the index's interface.
type indexedZone struct {
	geom.Polygonal
	id   string
	area float64
}

// Overlay computes all pairwise overlap tiles with strictly positive area
// between two zone collections. A spatial index over the larger collection
// prunes candidates; intersection is only attempted for bounding-box hits.
// Zones whose geometry cannot be repaired are excluded and returned so the
// caller can route them to the missing-zone report. The tile set is
// deterministic regardless of worker count.
func Overlay(ctx context.Context, zones1, zones2 []zoning.Zone, workers int) (tiles []model.Tile, excluded1, excluded2 []string, err error) {
	idx1, excluded1 := prepare(zones1)
	idx2, excluded2 := prepare(zones2)

	// Index the larger side, iterate the smaller.
	iter, indexed, swapped := idx1, idx2, false
	if len(idx1) > len(idx2) {
		iter, indexed, swapped = idx2, idx1, true
	}

	tree := rtree.NewTree(25, 50)
	for _, z := range indexed {
		tree.Insert(z)
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([][]model.Tile, len(iter))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, z := range iter {
		i, z := i, z
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = overlapOne(tree, z, swapped)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	for _, r := range results {
		tiles = append(tiles, r...)
	}
	sortTiles(tiles)
	return tiles, excluded1, excluded2, nil
}

// overlapOne intersects one zone against all index candidates. When
// swapped, the iterated zone belongs to system 2.
func overlapOne(tree *rtree.Rtree, z *indexedZone, swapped bool) []model.Tile {
	var tiles []model.Tile
	for _, item := range tree.SearchIntersect(z.Bounds()) {
		cand := item.(*indexedZone)
		isect := z.Intersection(cand.Polygonal)
		if isect == nil {
			continue
		}
		area := isect.Area()
		if area <= 0 || area < areaEpsRel*math.Max(z.area, cand.area) {
			continue
		}
		t := model.Tile{Zone1: z.id, Zone2: cand.id, Mass: area}
		if swapped {
			t.Zone1, t.Zone2 = cand.id, z.id
		}
		tiles = append(tiles, t)
	}
	return tiles
}

// prepare repairs each zone's geometry and builds index entries. Point
// zones and zones whose repair fails are skipped; failed repairs are
// returned as exclusions.
func prepare(zones []zoning.Zone) ([]*indexedZone, []string) {
	out := make([]*indexedZone, 0, len(zones))
	var excluded []string
	for _, z := range zones {
		if z.Geom == nil {
			continue
		}
		repaired := repair(z.Geom)
		if repaired == nil {
			excluded = append(excluded, z.ID)
			continue
		}
		out = append(out, &indexedZone{
			Polygonal: repaired,
			id:        z.ID,
			area:      repaired.Area(),
		})
	}
	if len(excluded) > 0 {
		zap.L().Warn("excluded zones with unrepairable geometry",
			zap.Int("count", len(excluded)),
			zap.Strings("ids", excluded),
		)
	}
	return out, excluded
}

// repair re-nodes a polygon by clipping it against its own bounding box,
// resolving self-intersections the same way a zero-width buffer would.
// Returns nil when the result degenerates to nothing.
func repair(p geom.Polygonal) geom.Polygonal {
	clipped := p.Intersection(p.Bounds())
	if clipped == nil || clipped.Area() <= 0 {
		return nil
	}
	return clipped
}

// sortTiles orders tiles by zone pair so downstream aggregation and cached
// results are independent of worker scheduling.
func sortTiles(tiles []model.Tile) {
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Zone1 != tiles[j].Zone1 {
			return tiles[i].Zone1 < tiles[j].Zone1
		}
		if tiles[i].Zone2 != tiles[j].Zone2 {
			return tiles[i].Zone2 < tiles[j].Zone2
		}
		return tiles[i].Lower < tiles[j].Lower
	})
}
