package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transport-futures/zonetrans/internal/model"
	"github.com/transport-futures/zonetrans/internal/zoning"
)

func TestFilterSlivers(t *testing.T) {
	in := []Factor{
		{Src: "A", Dst: "B1", Val: 0.97},
		{Src: "A", Dst: "B2", Val: 0.01},
		{Src: "A", Dst: "B3", Val: 0.02},
	}
	out := filterSlivers(in, 0.98)

	require.Len(t, out, 2)
	assert.Equal(t, "B1", out[0].Dst)
	assert.Equal(t, "B3", out[1].Dst)
	// Survivors rescaled to sum to one.
	assert.InDelta(t, 0.97/0.99, out[0].Val, 1e-9)
	assert.InDelta(t, 0.02/0.99, out[1].Val, 1e-9)
}

func TestFilterSliversFallback(t *testing.T) {
	in := []Factor{
		{Src: "A", Dst: "B1", Val: 0.003},
		{Src: "A", Dst: "B2", Val: 0.007},
	}
	out := filterSlivers(in, 0.98)

	require.Len(t, out, 1)
	assert.Equal(t, "B2", out[0].Dst)
	assert.InDelta(t, 1.0, out[0].Val, 1e-9)
}

func TestNormalize(t *testing.T) {
	in := []Factor{
		{Src: "A", Dst: "B1", Val: 0.3},
		{Src: "A", Dst: "B2", Val: 0.3},
		{Src: "Z", Dst: "B1", Val: 0},
	}
	out, zeroSum := normalize(in)

	require.Len(t, out, 2)
	assert.InDelta(t, 0.5, out[0].Val, 1e-9)
	assert.InDelta(t, 0.5, out[1].Val, 1e-9)
	assert.Equal(t, []string{"Z"}, zeroSum)
}

func TestAssemblePairsMergesDirections(t *testing.T) {
	fwd := []Factor{{Src: "A", Dst: "B", Val: 0.6}}
	rev := []Factor{{Src: "B", Dst: "A", Val: 1.0}}
	pairs, err := assemblePairs(fwd, rev)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, model.PairFactor{Zone1: "A", Zone2: "B", Forward: 0.6, Reverse: 1.0}, pairs[0])
}

func TestAssemblePairsRejectsInvalidFactors(t *testing.T) {
	_, err := assemblePairs([]Factor{{Src: "A", Dst: "B", Val: -0.1}}, nil)
	require.Error(t, err)
	_, err = assemblePairs([]Factor{{Src: "A", Dst: "B", Val: 1.5}}, nil)
	require.Error(t, err)
}

func TestAssemblePairsClampsFloatNoise(t *testing.T) {
	pairs, err := assemblePairs([]Factor{{Src: "A", Dst: "B", Val: 1 + 1e-9}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pairs[0].Forward)
}

func TestOverlayExcludesDisjointZones(t *testing.T) {
	z1 := []zoning.Zone{areaZone("A", rect(0, 0, 10, 10))}
	z2 := []zoning.Zone{
		areaZone("B", rect(5, 5, 15, 15)),
		areaZone("far", rect(100, 100, 110, 110)),
	}
	tiles, excl1, excl2, err := Overlay(context.Background(), z1, z2, 1)
	require.NoError(t, err)
	assert.Empty(t, excl1)
	assert.Empty(t, excl2)
	require.Len(t, tiles, 1)
	assert.Equal(t, "A", tiles[0].Zone1)
	assert.Equal(t, "B", tiles[0].Zone2)
	assert.InDelta(t, 25.0, tiles[0].Mass, 1e-9)
}

func TestOverlayOrderIndependentOfIndexSide(t *testing.T) {
	// More zones on side 1 than side 2 flips which side gets indexed; tile
	// naming must not flip with it.
	z1 := []zoning.Zone{
		areaZone("A1", rect(0, 0, 5, 10)),
		areaZone("A2", rect(5, 0, 10, 10)),
		areaZone("A3", rect(10, 0, 15, 10)),
	}
	z2 := []zoning.Zone{areaZone("B", rect(0, 0, 15, 10))}
	tiles, _, _, err := Overlay(context.Background(), z1, z2, 4)
	require.NoError(t, err)
	require.Len(t, tiles, 3)
	for _, tile := range tiles {
		assert.Equal(t, "B", tile.Zone2)
	}
	assert.Equal(t, "A1", tiles[0].Zone1)
	assert.Equal(t, "A2", tiles[1].Zone1)
	assert.Equal(t, "A3", tiles[2].Zone1)
}

func TestLowSumZones(t *testing.T) {
	pairs := []model.PairFactor{
		{Zone1: "A1", Zone2: "B1", Forward: 0.6, Reverse: 1},
		{Zone1: "A1", Zone2: "B2", Forward: 0.3, Reverse: 0.5},
		{Zone1: "A2", Zone2: "B1", Forward: 1, Reverse: 0},
	}
	low1, low2 := lowSumZones(pairs)
	assert.Equal(t, []string{"A1"}, low1)
	assert.Equal(t, []string{"B2"}, low2)
}

func TestDetectMissing(t *testing.T) {
	pairs := []model.PairFactor{
		{Zone1: "A1", Zone2: "B1", Forward: 0.5, Reverse: 1},
		{Zone1: "A2", Zone2: "B1", Forward: 0, Reverse: 0},
	}
	m := detectMissing([]string{"A1", "A2"}, []string{"B1", "B2"}, pairs)
	assert.Equal(t, []string{"A2"}, m.Zone1)
	assert.Equal(t, []string{"B2"}, m.Zone2)
}

// fakeCache memoises in-process, counting compute invocations.
type fakeCache struct {
	overlays map[string][]model.Tile
	factors  map[string][]model.PairFactor
	computes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		overlays: make(map[string][]model.Tile),
		factors:  make(map[string][]model.PairFactor),
	}
}

func (c *fakeCache) Overlay(ctx context.Context, key string, compute func(context.Context) ([]model.Tile, error)) ([]model.Tile, bool, error) {
	if tiles, ok := c.overlays[key]; ok {
		return tiles, true, nil
	}
	tiles, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.overlays[key] = tiles
	return tiles, false, nil
}

func (c *fakeCache) Factors(ctx context.Context, key string, _ CacheInfo, compute func(context.Context) ([]model.PairFactor, error)) ([]model.PairFactor, bool, error) {
	if pairs, ok := c.factors[key]; ok {
		return pairs, true, nil
	}
	c.computes++
	pairs, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.factors[key] = pairs
	return pairs, false, nil
}

func TestSpatialUsesCache(t *testing.T) {
	zs1 := system(t, "alpha", areaZone("A", rect(0, 0, 10, 10)))
	zs2 := system(t, "beta", areaZone("B", rect(0, 0, 10, 10)))

	cache := newFakeCache()
	tr := New(defaultOpts(), cache)

	first, err := tr.Spatial(context.Background(), zs1, zs2)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := tr.Spatial(context.Background(), zs1, zs2)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Pairs, second.Pairs)
	assert.Equal(t, 1, cache.computes)
}

func TestCacheKeyChangesWithOptions(t *testing.T) {
	zs1 := system(t, "alpha", areaZone("A", rect(0, 0, 10, 10)))
	zs2 := system(t, "beta", areaZone("B", rect(0, 0, 10, 10)))

	cache := newFakeCache()
	_, err := New(defaultOpts(), cache).Spatial(context.Background(), zs1, zs2)
	require.NoError(t, err)

	loose := defaultOpts()
	loose.SliverTolerance = 0.90
	res, err := New(loose, cache).Spatial(context.Background(), zs1, zs2)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 2, cache.computes)
}
