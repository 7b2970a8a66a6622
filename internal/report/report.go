// Package report writes translation outputs: the factor CSV, the
// missing-zone workbook and the parameter echo that records how a factor
// table was produced.
package report

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/transport-futures/zonetrans/internal/model"
)

// Writer writes all outputs for one translation run into a single
// directory.
type Writer struct {
	dir string
	log *zap.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, eris.New("report: output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create output directory %s", dir)
	}
	return &Writer{
		dir: dir,
		log: zap.L().With(zap.String("component", "report")),
	}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// baseName builds the shared filename stem for a result:
// alpha_to_beta_spatial or alpha_to_beta_population_2021.
func baseName(res *model.Result, year int) string {
	if res.Mode == model.ModeWeighted {
		return fmt.Sprintf("%s_to_%s_%s_%d", res.Zone1Name, res.Zone2Name, res.Method, year)
	}
	return fmt.Sprintf("%s_to_%s_spatial", res.Zone1Name, res.Zone2Name)
}

// formatFactor renders a factor with the shortest representation that
// round-trips, so rewriting an unchanged table is byte-identical.
func formatFactor(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
