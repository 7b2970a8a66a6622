// Package config loads the application configuration from YAML and
// environment variables and initializes global logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Zone1       ZoneConfig        `yaml:"zone1" mapstructure:"zone1"`
	Zone2       ZoneConfig        `yaml:"zone2" mapstructure:"zone2"`
	LowerZoning LowerConfig       `yaml:"lower_zoning" mapstructure:"lower_zoning"`
	Translation TranslationConfig `yaml:"translation" mapstructure:"translation"`
	Projection  ProjectionConfig  `yaml:"projection" mapstructure:"projection"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// ZoneConfig describes one zone system's inputs.
type ZoneConfig struct {
	Name           string `yaml:"name" mapstructure:"name"`
	Shapefile      string `yaml:"shapefile" mapstructure:"shapefile"`
	IDCol          string `yaml:"id_col" mapstructure:"id_col"`
	PointShapefile string `yaml:"point_shapefile" mapstructure:"point_shapefile"`
	Proj4          string `yaml:"proj4" mapstructure:"proj4"`
}

// LowerConfig describes the lower zoning layer and its weight data, used
// only by weighted translations.
type LowerConfig struct {
	ZoneConfig  `yaml:",inline" mapstructure:",squash"`
	WeightData  string `yaml:"weight_data" mapstructure:"weight_data"`
	WeightIDCol string `yaml:"weight_id_col" mapstructure:"weight_id_col"`
	WeightCol   string `yaml:"weight_col" mapstructure:"weight_col"`
	WeightYear  int    `yaml:"weight_year" mapstructure:"weight_year"`
}

// TranslationConfig holds the correspondence pipeline settings.
type TranslationConfig struct {
	Method          string  `yaml:"method" mapstructure:"method"`
	Rounding        bool    `yaml:"rounding" mapstructure:"rounding"`
	FilterSlivers   bool    `yaml:"filter_slivers" mapstructure:"filter_slivers"`
	SliverTolerance float64 `yaml:"sliver_tolerance" mapstructure:"sliver_tolerance"`
	PointHandling   bool    `yaml:"point_handling" mapstructure:"point_handling"`
	PointTolerance  float64 `yaml:"point_tolerance" mapstructure:"point_tolerance"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
}

// ProjectionConfig names the working CRS every layer is reprojected into
// before overlay. Factors are area ratios, so the CRS must preserve area;
// the default is British National Grid.
type ProjectionConfig struct {
	Target string `yaml:"target" mapstructure:"target"`
}

// CacheConfig configures the translation cache backend.
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig configures where run outputs are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path means
// ./config.yaml, which may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ZONETRANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("translation.rounding", true)
	v.SetDefault("translation.filter_slivers", true)
	v.SetDefault("translation.sliver_tolerance", 0.98)
	v.SetDefault("translation.point_handling", false)
	v.SetDefault("translation.point_tolerance", 1.0)
	v.SetDefault("translation.workers", 0)
	v.SetDefault("projection.target", "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +units=m +no_defs")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", ".zonetrans/cache.db")
	v.SetDefault("output.dir", "outputs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields every translation needs. Lower zoning fields
// are only checked when weighted is true.
func (c *Config) Validate(weighted bool) error {
	for _, z := range []struct {
		label string
		zone  ZoneConfig
	}{
		{"zone1", c.Zone1},
		{"zone2", c.Zone2},
	} {
		if z.zone.Name == "" {
			return eris.Errorf("config: %s.name is required", z.label)
		}
		if z.zone.Shapefile == "" {
			return eris.Errorf("config: %s.shapefile is required", z.label)
		}
		if z.zone.IDCol == "" {
			return eris.Errorf("config: %s.id_col is required", z.label)
		}
	}
	if c.Zone1.Name == c.Zone2.Name {
		return eris.Errorf("config: zone1 and zone2 share the name %q", c.Zone1.Name)
	}
	if c.Translation.SliverTolerance <= 0 || c.Translation.SliverTolerance >= 1 {
		return eris.Errorf("config: translation.sliver_tolerance %g must be in (0, 1)", c.Translation.SliverTolerance)
	}

	if !weighted {
		return nil
	}
	if c.LowerZoning.Shapefile == "" {
		return eris.New("config: lower_zoning.shapefile is required for weighted translation")
	}
	if c.LowerZoning.IDCol == "" {
		return eris.New("config: lower_zoning.id_col is required for weighted translation")
	}
	if c.LowerZoning.WeightData == "" {
		return eris.New("config: lower_zoning.weight_data is required for weighted translation")
	}
	if c.LowerZoning.WeightCol == "" {
		return eris.New("config: lower_zoning.weight_col is required for weighted translation")
	}
	if c.Translation.Method == "" {
		return eris.New("config: translation.method is required for weighted translation")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
