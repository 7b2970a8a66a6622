package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/transport-futures/zonetrans/internal/model"
)

// WriteFactors writes the factor table CSV and returns its path. Columns
// are <zone1>_id, <zone2>_id, <zone1>_to_<zone2>, <zone2>_to_<zone1>;
// rows follow the result's pair order.
func (w *Writer) WriteFactors(res *model.Result, year int) (string, error) {
	path := filepath.Join(w.dir, baseName(res, year)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "report: create %s", path)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	header := []string{
		fmt.Sprintf("%s_id", res.Zone1Name),
		fmt.Sprintf("%s_id", res.Zone2Name),
		fmt.Sprintf("%s_to_%s", res.Zone1Name, res.Zone2Name),
		fmt.Sprintf("%s_to_%s", res.Zone2Name, res.Zone1Name),
	}
	if err := cw.Write(header); err != nil {
		return "", eris.Wrap(err, "report: write header")
	}
	for _, p := range res.Pairs {
		rec := []string{p.Zone1, p.Zone2, formatFactor(p.Forward), formatFactor(p.Reverse)}
		if err := cw.Write(rec); err != nil {
			return "", eris.Wrapf(err, "report: write pair %s/%s", p.Zone1, p.Zone2)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", eris.Wrapf(err, "report: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "report: close %s", path)
	}

	w.log.Info("factor table written", zap.String("path", path), zap.Int("rows", len(res.Pairs)))
	return path, nil
}
