package zoning

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// ZoneSource describes the on-disk inputs for one zone system.
type ZoneSource struct {
	Name           string
	Shapefile      string
	IDCol          string
	PointShapefile string // optional dedicated point layer
	Proj4          string // source CRS; empty means already in the target CRS
}

// LowerSource describes a lower zoning layer plus its weight data.
type LowerSource struct {
	ZoneSource
	WeightData  string // CSV path
	WeightIDCol string
	WeightCol   string
	WeightYear  int
}

// LoadZoneSystem reads a zone system from a shapefile, reprojecting to
// targetProj4 when the source declares a different CRS. Features with no
// usable polygon geometry are dropped and counted; a dedicated point layer,
// when configured, is appended as point zones.
func LoadZoneSystem(src ZoneSource, targetProj4 string) (*ZoneSystem, error) {
	if src.Shapefile == "" {
		return nil, eris.Errorf("zoning: %s: shapefile path is required", src.Name)
	}
	log := zap.L().With(zap.String("component", "zoning.loader"), zap.String("zone_system", src.Name))

	trans, err := transformer(src.Proj4, targetProj4)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: %s: resolve CRS", src.Name)
	}
	if src.Proj4 == "" {
		log.Warn("no source CRS configured, assuming target CRS", zap.String("shapefile", src.Shapefile))
	}

	reader, err := shp.Open(src.Shapefile)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: %s: open shapefile %s", src.Name, src.Shapefile)
	}
	defer func() { _ = reader.Close() }()

	idIdx := fieldIndex(reader, src.IDCol)
	if idIdx < 0 {
		return nil, eris.Errorf("zoning: %s: id column %q not found in %s", src.Name, src.IDCol, src.Shapefile)
	}

	var zones []Zone
	var dropped int
	for reader.Next() {
		_, shape := reader.Shape()
		id := attribute(reader, idIdx)
		if id == "" {
			dropped++
			continue
		}

		poly := shapeToPolygonal(shape)
		if poly == nil {
			dropped++
			continue
		}
		if trans != nil {
			tg, terr := poly.Transform(trans)
			if terr != nil {
				dropped++
				continue
			}
			poly = tg.(geom.Polygonal)
		}
		// Shapefile ring winding varies between producers; area magnitude
		// is what factor denominators need.
		zones = append(zones, Zone{ID: id, Geom: poly, Area: math.Abs(poly.Area())})
	}
	if dropped > 0 {
		log.Warn("dropped features with missing id or unusable geometry", zap.Int("dropped", dropped))
	}
	log.Info("zone system loaded", zap.Int("zones", len(zones)))

	if src.PointShapefile != "" {
		pts, perr := loadPoints(src, trans)
		if perr != nil {
			return nil, perr
		}
		zones = append(zones, pts...)
		log.Info("point layer appended", zap.Int("points", len(pts)))
	}

	return NewZoneSystem(src.Name, src.IDCol, zones)
}

// loadPoints reads the dedicated point layer for a zone system.
func loadPoints(src ZoneSource, trans proj.Transformer) ([]Zone, error) {
	reader, err := shp.Open(src.PointShapefile)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: %s: open point shapefile %s", src.Name, src.PointShapefile)
	}
	defer func() { _ = reader.Close() }()

	idIdx := fieldIndex(reader, src.IDCol)
	if idIdx < 0 {
		return nil, eris.Errorf("zoning: %s: id column %q not found in %s", src.Name, src.IDCol, src.PointShapefile)
	}

	var zones []Zone
	for reader.Next() {
		_, shape := reader.Shape()
		id := attribute(reader, idIdx)
		if id == "" {
			continue
		}
		p, ok := shape.(*shp.Point)
		if !ok {
			continue
		}
		gp := geom.Point{X: p.X, Y: p.Y}
		if trans != nil {
			tg, terr := gp.Transform(trans)
			if terr != nil {
				continue
			}
			gp = tg.(geom.Point)
		}
		pt := gp
		zones = append(zones, Zone{ID: id, Point: &pt})
	}
	return zones, nil
}

// transformer builds a source-to-target CRS transform, or nil when no
// reprojection is needed.
func transformer(srcProj4, targetProj4 string) (proj.Transformer, error) {
	if srcProj4 == "" || srcProj4 == targetProj4 {
		return nil, nil
	}
	if targetProj4 == "" {
		return nil, eris.New("source CRS set but no target CRS configured")
	}
	srcSR, err := proj.Parse(srcProj4)
	if err != nil {
		return nil, eris.Wrapf(err, "parse source CRS %q", srcProj4)
	}
	dstSR, err := proj.Parse(targetProj4)
	if err != nil {
		return nil, eris.Wrapf(err, "parse target CRS %q", targetProj4)
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, eris.Wrap(err, "build transform")
	}
	return t, nil
}

// shapeToPolygonal converts a shapefile shape to a geom.Polygonal,
// returning nil for unsupported or degenerate shapes. All parts of a
// multi-part polygon are kept as rings of one polygon, matching the
// shapefile ring-orientation convention.
func shapeToPolygonal(s shp.Shape) geom.Polygonal {
	p, ok := s.(*shp.Polygon)
	if !ok || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	poly := make(geom.Polygon, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}
		ring := make([]geom.Point, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Point{X: p.Points[j].X, Y: p.Points[j].Y})
		}
		poly = append(poly, ring)
	}
	if len(poly) == 0 {
		return nil
	}
	return poly
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if
// not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// attribute reads a DBF attribute, trimming NUL padding and decoding
// Latin-1 when the raw bytes are not valid UTF-8.
func attribute(reader *shp.Reader, idx int) string {
	val := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	if utf8.ValidString(val) {
		return val
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(val)
	if err != nil {
		return val
	}
	return decoded
}
