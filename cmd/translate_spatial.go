package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var spatialCmd = &cobra.Command{
	Use:   "spatial",
	Short: "Area-based correspondence between two zone systems",
	Long: `Computes factors from pure area overlap: each factor is the share of
the source zone's area lying inside the target zone. Suitable when the
quantity being translated is spread evenly over space.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(false); err != nil {
			return err
		}
		logRunStart("spatial")

		zs1, zs2, err := loadZoneSystems()
		if err != nil {
			return err
		}

		c, closeCache, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()

		tr := newTranslator(c)
		res, err := tr.Spatial(ctx, zs1, zs2)
		if err != nil {
			return eris.Wrap(err, "translate spatial")
		}

		return writeOutputs(res, 0, runParams{
			Zone1:       cfg.Zone1,
			Zone2:       cfg.Zone2,
			Translation: cfg.Translation,
			Projection:  cfg.Projection,
		})
	},
}

func init() {
	translateCmd.AddCommand(spatialCmd)
}
