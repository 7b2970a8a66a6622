package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transport-futures/zonetrans/internal/config"
)

func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["translate"])
	assert.True(t, names["cache"])
	assert.True(t, names["config-example"])

	sub := make(map[string]bool)
	for _, c := range translateCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["spatial"])
	assert.True(t, sub["weighted"])
}

func TestTranslatorOptionsFromConfig(t *testing.T) {
	cfg = &config.Config{}
	cfg.Translation = config.TranslationConfig{
		Rounding:        true,
		FilterSlivers:   true,
		SliverTolerance: 0.95,
		PointHandling:   true,
		PointTolerance:  2.5,
		Workers:         4,
	}

	opts := translatorOptions()
	assert.True(t, opts.Rounding)
	assert.Equal(t, 0.95, opts.SliverTolerance)
	assert.True(t, opts.PointHandling)
	assert.Equal(t, 2.5, opts.PointTolerance)
	assert.Equal(t, 4, opts.Workers)
}

func TestNewTranslatorNilCache(t *testing.T) {
	cfg = &config.Config{}
	cfg.Translation.SliverTolerance = 0.98
	tr := newTranslator(nil)
	require.NotNil(t, tr)
}

func TestZoneSourceMapping(t *testing.T) {
	src := zoneSource(config.ZoneConfig{
		Name: "lsoa", Shapefile: "a.shp", IDCol: "id", PointShapefile: "p.shp", Proj4: "+proj=longlat",
	})
	assert.Equal(t, "lsoa", src.Name)
	assert.Equal(t, "a.shp", src.Shapefile)
	assert.Equal(t, "p.shp", src.PointShapefile)
	assert.Equal(t, "+proj=longlat", src.Proj4)
}
