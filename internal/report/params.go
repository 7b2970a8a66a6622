package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/transport-futures/zonetrans/internal/model"
)

// WriteParams echoes the run configuration as YAML beside the factor
// table, so a table on disk can always be traced back to the inputs and
// options that produced it.
func (w *Writer) WriteParams(res *model.Result, year int, params any) (string, error) {
	data, err := yaml.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "report: marshal params")
	}
	path := filepath.Join(w.dir, baseName(res, year)+"_params.yml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	w.log.Debug("run parameters echoed", zap.String("path", path))
	return path, nil
}
