package zoning

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0},
	}}
}

func polyZone(id string, p geom.Polygon) Zone {
	return Zone{ID: id, Geom: p, Area: p.Area()}
}

func TestNewZoneSystem(t *testing.T) {
	zs, err := NewZoneSystem("lsoa", "id", []Zone{
		polyZone("A", square(0, 0, 10)),
		polyZone("B", square(10, 0, 10)),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, zs.Len())
	assert.Equal(t, []string{"A", "B"}, zs.IDs())

	z, ok := zs.Zone("B")
	require.True(t, ok)
	assert.Equal(t, "B", z.ID)

	_, ok = zs.Zone("C")
	assert.False(t, ok)
}

func TestNewZoneSystemRejectsBadInput(t *testing.T) {
	_, err := NewZoneSystem("", "id", nil)
	require.Error(t, err)

	_, err = NewZoneSystem("lsoa", "id", []Zone{
		polyZone("A", square(0, 0, 1)),
		polyZone("A", square(1, 0, 1)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate zone id")

	_, err = NewZoneSystem("lsoa", "id", []Zone{{ID: ""}})
	require.Error(t, err)

	_, err = NewZoneSystem("lsoa", "id", []Zone{{ID: "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no geometry")
}

func TestZoneIsPointAndCentroid(t *testing.T) {
	pt := geom.Point{X: 3, Y: 4}
	z := Zone{ID: "p", Point: &pt}
	assert.True(t, z.IsPoint())
	assert.Equal(t, pt, z.Centroid())

	area := polyZone("A", square(0, 0, 10))
	assert.False(t, area.IsPoint())
	c := area.Centroid()
	assert.InDelta(t, 5, c.X, 1e-9)
	assert.InDelta(t, 5, c.Y, 1e-9)
}

func TestNewLowerZoneSystem(t *testing.T) {
	zs, err := NewZoneSystem("oa", "id", []Zone{
		polyZone("L1", square(0, 0, 1)),
		polyZone("L2", square(1, 0, 1)),
		polyZone("L3", square(2, 0, 1)),
	})
	require.NoError(t, err)

	lower, err := NewLowerZoneSystem(zs, map[string]float64{
		"L1":    100,
		"L2":    0,
		"ghost": 7, // weight with no geometry
	}, "population", 2021)
	require.NoError(t, err)

	assert.Equal(t, 100.0, lower.Weight("L1"))
	assert.Equal(t, 0.0, lower.Weight("L2"))
	assert.Equal(t, 0.0, lower.Weight("L3"))
	assert.Equal(t, 1, lower.Unmatched)
	assert.Equal(t, 1, lower.Unweighted)
	assert.Equal(t, 2021, lower.WeightYear)
}

func TestNewLowerZoneSystemRejectsNegativeWeight(t *testing.T) {
	zs, err := NewZoneSystem("oa", "id", []Zone{polyZone("L1", square(0, 0, 1))})
	require.NoError(t, err)

	_, err = NewLowerZoneSystem(zs, map[string]float64{"L1": -5}, "population", 2021)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative weight")
}
