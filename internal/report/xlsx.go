package report

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/transport-futures/zonetrans/internal/model"
)

// WriteMissing writes the missing-zone workbook, one sheet per zone
// system, and returns its path. Nothing is written when no zones are
// missing; the empty path signals that.
func (w *Writer) WriteMissing(res *model.Result, year int) (string, error) {
	if res.Missing.Empty() {
		return "", nil
	}

	f := xlsx.NewFile()
	if err := addMissingSheet(f, res.Zone1Name, res.Missing.Zone1); err != nil {
		return "", err
	}
	if err := addMissingSheet(f, res.Zone2Name, res.Missing.Zone2); err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, baseName(res, year)+"_missing_zones.xlsx")
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "report: save %s", path)
	}

	w.log.Warn("zones with no correspondence written to workbook",
		zap.String("path", path),
		zap.Int("missing_zone1", len(res.Missing.Zone1)),
		zap.Int("missing_zone2", len(res.Missing.Zone2)),
	)
	return path, nil
}

func addMissingSheet(f *xlsx.File, zoneName string, ids []string) error {
	sheet, err := f.AddSheet(zoneName + "_missing")
	if err != nil {
		return eris.Wrapf(err, "report: add sheet for %s", zoneName)
	}
	header := sheet.AddRow()
	header.AddCell().Value = zoneName + "_id"
	for _, id := range ids {
		sheet.AddRow().AddCell().Value = id
	}
	return nil
}
