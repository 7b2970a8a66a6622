package zoning

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadLowerZoneSystem reads the lower zoning shapefile and joins its
// weight CSV. Weight ids not matching any geometry id are counted and
// logged; they are not errors.
func LoadLowerZoneSystem(src LowerSource, targetProj4 string) (*LowerZoneSystem, error) {
	zs, err := LoadZoneSystem(src.ZoneSource, targetProj4)
	if err != nil {
		return nil, err
	}
	weights, err := readWeightCSV(src.WeightData, src.WeightIDCol, src.WeightCol)
	if err != nil {
		return nil, eris.Wrapf(err, "zoning: %s: weight data", src.Name)
	}
	lower, err := NewLowerZoneSystem(zs, weights, src.WeightCol, src.WeightYear)
	if err != nil {
		return nil, err
	}
	if lower.Unmatched > 0 || lower.Unweighted > 0 {
		zap.L().Warn("lower zoning and weight data do not fully match",
			zap.String("zone_system", src.Name),
			zap.Int("weight_ids_without_geometry", lower.Unmatched),
			zap.Int("geometry_ids_without_weight", lower.Unweighted),
		)
	}
	return lower, nil
}

// readWeightCSV reads a two-or-more column CSV of zone id and weight
// value, located by header name.
func readWeightCSV(path, idCol, dataCol string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "read header of %s", path)
	}
	idIdx, dataIdx := -1, -1
	for i, h := range header {
		switch h {
		case idCol:
			idIdx = i
		case dataCol:
			dataIdx = i
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("id column %q not in %s", idCol, path)
	}
	if dataIdx < 0 {
		return nil, eris.Errorf("weight column %q not in %s", dataCol, path)
	}

	weights := make(map[string]float64)
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read %s line %d", path, line)
		}
		line++
		id := rec[idIdx]
		if id == "" {
			continue
		}
		if _, dup := weights[id]; dup {
			return nil, eris.Errorf("duplicate weight id %q in %s", id, path)
		}
		raw := rec[dataIdx]
		if raw == "" {
			weights[id] = 0
			continue
		}
		w, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return nil, eris.Wrapf(perr, "parse weight %q for id %q in %s", raw, id, path)
		}
		weights[id] = w
	}
	return weights, nil
}
