package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/transport-futures/zonetrans/internal/zoning"
)

var weightedMethod string

var weightedCmd = &cobra.Command{
	Use:   "weighted",
	Short: "Attribute-weighted correspondence via a lower zoning layer",
	Long: `Computes factors weighted by an attribute (population, employment, ...)
carried on a lower zoning layer that refines both zone systems. Each
lower zone's weight is split between zone pairs in proportion to the
area each side covers, so factors follow where the attribute actually
sits instead of raw land area.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if weightedMethod != "" {
			cfg.Translation.Method = weightedMethod
		}
		if err := cfg.Validate(true); err != nil {
			return err
		}
		logRunStart("weighted")

		zs1, zs2, err := loadZoneSystems()
		if err != nil {
			return err
		}
		lower, err := zoning.LoadLowerZoneSystem(lowerSource(cfg.LowerZoning), cfg.Projection.Target)
		if err != nil {
			return err
		}

		c, closeCache, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer closeCache()

		tr := newTranslator(c)
		res, err := tr.Weighted(ctx, zs1, zs2, lower, cfg.Translation.Method)
		if err != nil {
			return eris.Wrap(err, "translate weighted")
		}

		lowerCfg := cfg.LowerZoning
		return writeOutputs(res, lower.WeightYear, runParams{
			Zone1:       cfg.Zone1,
			Zone2:       cfg.Zone2,
			LowerZoning: &lowerCfg,
			Translation: cfg.Translation,
			Projection:  cfg.Projection,
		})
	},
}

func init() {
	weightedCmd.Flags().StringVar(&weightedMethod, "method", "", "weighting method name (default: translation.method from config)")
	translateCmd.AddCommand(weightedCmd)
}
