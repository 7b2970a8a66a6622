package zoning

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSystem(t *testing.T, name string, zones ...Zone) *ZoneSystem {
	t.Helper()
	zs, err := NewZoneSystem(name, "id", zones)
	require.NoError(t, err)
	return zs
}

func TestFingerprintStable(t *testing.T) {
	zs := mustSystem(t, "lsoa", polyZone("A", square(0, 0, 10)), polyZone("B", square(10, 0, 10)))

	fp1, err := Fingerprint(zs)
	require.NoError(t, err)
	fp2, err := Fingerprint(zs)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	base := mustSystem(t, "lsoa", polyZone("A", square(0, 0, 10)))
	fpBase, err := Fingerprint(base)
	require.NoError(t, err)

	renamed := mustSystem(t, "lsoa", polyZone("A2", square(0, 0, 10)))
	fpRenamed, err := Fingerprint(renamed)
	require.NoError(t, err)
	assert.NotEqual(t, fpBase, fpRenamed)

	moved := mustSystem(t, "lsoa", polyZone("A", square(0, 1, 10)))
	fpMoved, err := Fingerprint(moved)
	require.NoError(t, err)
	assert.NotEqual(t, fpBase, fpMoved)

	otherName := mustSystem(t, "msoa", polyZone("A", square(0, 0, 10)))
	fpOther, err := Fingerprint(otherName)
	require.NoError(t, err)
	assert.NotEqual(t, fpBase, fpOther)
}

func TestFingerprintHandlesPointZones(t *testing.T) {
	pt := geom.Point{X: 3, Y: 4}
	zs := mustSystem(t, "sites", Zone{ID: "p1", Point: &pt})

	fp, err := Fingerprint(zs)
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	moved := geom.Point{X: 3, Y: 5}
	zs2 := mustSystem(t, "sites", Zone{ID: "p1", Point: &moved})
	fp2, err := Fingerprint(zs2)
	require.NoError(t, err)
	assert.NotEqual(t, fp, fp2)
}

func TestWeightsFingerprint(t *testing.T) {
	zs := mustSystem(t, "oa", polyZone("L1", square(0, 0, 1)), polyZone("L2", square(1, 0, 1)))

	l1, err := NewLowerZoneSystem(zs, map[string]float64{"L1": 10, "L2": 20}, "population", 2021)
	require.NoError(t, err)
	l2, err := NewLowerZoneSystem(zs, map[string]float64{"L2": 20, "L1": 10}, "population", 2021)
	require.NoError(t, err)

	// Same content, independent of map insertion order.
	assert.Equal(t, WeightsFingerprint(l1), WeightsFingerprint(l2))

	changed, err := NewLowerZoneSystem(zs, map[string]float64{"L1": 10, "L2": 21}, "population", 2021)
	require.NoError(t, err)
	assert.NotEqual(t, WeightsFingerprint(l1), WeightsFingerprint(changed))

	otherYear, err := NewLowerZoneSystem(zs, map[string]float64{"L1": 10, "L2": 20}, "population", 2031)
	require.NoError(t, err)
	assert.NotEqual(t, WeightsFingerprint(l1), WeightsFingerprint(otherYear))
}
