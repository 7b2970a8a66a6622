package zoning

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	cgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// fingerprintSRID tags fingerprint geometries; the value is arbitrary as
// long as it is stable, since fingerprints only ever compare against each
// other.
const fingerprintSRID = 27700

// Fingerprint returns a stable SHA-256 hex digest of a zone system's ids
// and geometry content, encoded as canonical EWKB. Two loads of the same
// source always produce the same fingerprint; any geometry or id change
// produces a different one.
func Fingerprint(s *ZoneSystem) (string, error) {
	h := sha256.New()
	h.Write([]byte(s.Name))
	for _, z := range s.Zones {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(z.ID)))
		h.Write(n[:])
		h.Write([]byte(z.ID))

		g, err := toWKBGeometry(z)
		if err != nil {
			return "", eris.Wrapf(err, "zoning: fingerprint %s zone %q", s.Name, z.ID)
		}
		data, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return "", eris.Wrapf(err, "zoning: fingerprint %s zone %q: encode WKB", s.Name, z.ID)
		}
		h.Write(data)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// WeightsFingerprint returns a stable SHA-256 hex digest of a lower zone
// system's weight values, independent of map iteration order.
func WeightsFingerprint(l *LowerZoneSystem) string {
	ids := make([]string, 0, len(l.Weights))
	for id := range l.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d\n", l.WeightCol, l.WeightYear)
	for _, id := range ids {
		fmt.Fprintf(h, "%s=%s\n", id, strconv.FormatFloat(l.Weights[id], 'g', -1, 64))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// toWKBGeometry converts a zone's geometry to a go-geom value suitable for
// EWKB encoding.
func toWKBGeometry(z Zone) (geom.T, error) {
	if z.IsPoint() {
		return geom.NewPointFlat(geom.XY, []float64{z.Point.X, z.Point.Y}).SetSRID(fingerprintSRID), nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(fingerprintSRID)
	for _, cp := range z.Geom.Polygons() {
		poly := geom.NewPolygon(geom.XY)
		for _, ring := range cp {
			flat := ringFlatCoords(ring)
			if len(flat) < 8 {
				continue
			}
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				return nil, eris.Wrap(err, "push ring")
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			return nil, eris.Wrap(err, "push polygon")
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.New("no encodable rings")
	}
	return mp, nil
}

// ringFlatCoords flattens a ring to coordinate pairs, closing it if the
// source ring is open.
func ringFlatCoords(ring []cgeom.Point) []float64 {
	if len(ring) == 0 {
		return nil
	}
	closed := ring[0] == ring[len(ring)-1]
	n := len(ring)
	if !closed {
		n++
	}
	flat := make([]float64, 0, n*2)
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	if !closed {
		flat = append(flat, ring[0].X, ring[0].Y)
	}
	return flat
}
