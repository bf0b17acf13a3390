package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jengzang/fwa-watersheds-go/internal/watershed"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Referencing ReferencingConfig `mapstructure:"referencing"`
	Refinement  RefinementConfig  `mapstructure:"refinement"`
	DEM         DEMConfig         `mapstructure:"dem"`
	CrossBorder CrossBorderConfig `mapstructure:"crossborder"`
	Graph       GraphConfig       `mapstructure:"graph"`
	Workers     int               `mapstructure:"workers"`
	// PointTimeout abandons a point that takes longer; 0 disables
	PointTimeout time.Duration `mapstructure:"point_timeout"`
}

// ServerConfig is the HTTP API
type ServerConfig struct {
	Port       string        `mapstructure:"port"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	RateLimit  int           `mapstructure:"rate_limit"` // requests per window per client, 0 disables
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// DatabaseConfig is the sqlite store
type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	BusyTimeout  int    `mapstructure:"busy_timeout"` // milliseconds
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	Caller bool   `mapstructure:"caller"`
}

// ReferencingConfig controls snapping points onto the stream network
type ReferencingConfig struct {
	SearchRadius float64 `mapstructure:"search_radius"` // metres
	Closest      bool    `mapstructure:"closest"`
}

// RefinementConfig holds the selector thresholds
type RefinementConfig struct {
	Thresholds    watershed.ThresholdSet `mapstructure:"thresholds"`
	FallbackToDEM bool                   `mapstructure:"fallback_to_dem"`
}

// DEMConfig selects and tunes the elevation source
type DEMConfig struct {
	Source       string  `mapstructure:"source"` // wcs or file
	URL          string  `mapstructure:"url"`
	Coverage     string  `mapstructure:"coverage"`
	Path         string  `mapstructure:"path"`
	CellSize     float64 `mapstructure:"cell_size"`
	Expansion    float64 `mapstructure:"expansion"`
	BurnDepth    float64 `mapstructure:"burn_depth"`
	SnapDistance float64 `mapstructure:"snap_distance"`
	HexEdge      float64 `mapstructure:"hex_edge"`
}

// CrossBorderConfig covers the border lookup and the EPA WATERS services
type CrossBorderConfig struct {
	BordersFile       string        `mapstructure:"borders_file"`
	PointIndexingURL  string        `mapstructure:"point_indexing_url"`
	DelineationURL    string        `mapstructure:"delineation_url"`
	Tolerance         float64       `mapstructure:"tolerance"`    // km
	MaxDistance       float64       `mapstructure:"max_distance"` // km
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Retries           int           `mapstructure:"retries"`
	Backoff           time.Duration `mapstructure:"backoff"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxSteps          int           `mapstructure:"max_steps"`
}

// GraphConfig is the optional neo4j basin store. An empty URI keeps basins
// in sqlite.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// EnvPrefix is prepended to every environment override, FWA_DATABASE_PATH
// for database.path
const EnvPrefix = "FWA"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_window", time.Minute)

	v.SetDefault("database.path", "./data/fwa.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.busy_timeout", 5000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.caller", false)

	v.SetDefault("referencing.search_radius", watershed.DefaultSearchRadius)
	v.SetDefault("referencing.closest", true)

	t := watershed.DefaultThresholds
	v.SetDefault("refinement.thresholds.stream.top", t.Stream.Top)
	v.SetDefault("refinement.thresholds.stream.bottom", t.Stream.Bottom)
	v.SetDefault("refinement.thresholds.waterbody.top", t.Waterbody.Top)
	v.SetDefault("refinement.thresholds.waterbody.bottom", t.Waterbody.Bottom)
	v.SetDefault("refinement.fallback_to_dem", true)

	d := watershed.DefaultDEMOptions
	v.SetDefault("dem.source", "wcs")
	v.SetDefault("dem.url", "")
	v.SetDefault("dem.coverage", "")
	v.SetDefault("dem.path", "")
	v.SetDefault("dem.cell_size", 25.0)
	v.SetDefault("dem.expansion", d.Expansion)
	v.SetDefault("dem.burn_depth", d.BurnDepth)
	v.SetDefault("dem.snap_distance", d.SnapDistance)
	v.SetDefault("dem.hex_edge", d.HexEdge)

	v.SetDefault("crossborder.borders_file", "")
	v.SetDefault("crossborder.point_indexing_url", "")
	v.SetDefault("crossborder.delineation_url", "")
	v.SetDefault("crossborder.tolerance", 5.0)
	v.SetDefault("crossborder.max_distance", 560.0)
	v.SetDefault("crossborder.requests_per_second", 2)
	v.SetDefault("crossborder.retries", 3)
	v.SetDefault("crossborder.backoff", time.Second)
	v.SetDefault("crossborder.timeout", 60*time.Second)
	v.SetDefault("crossborder.max_steps", 1000)

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")

	v.SetDefault("workers", 0)
	v.SetDefault("point_timeout", 10*time.Minute)
}

// Load 加载配置: defaults, then the file at path if given, then FWA_
// environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects nonsensical values and fills derived ones
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.PointTimeout < 0 {
		return fmt.Errorf("point_timeout must not be negative, got %v", c.PointTimeout)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Referencing.SearchRadius <= 0 {
		return fmt.Errorf("referencing.search_radius must be positive, got %v", c.Referencing.SearchRadius)
	}
	if err := c.Refinement.Thresholds.Validate(); err != nil {
		return err
	}

	switch c.DEM.Source {
	case "wcs":
	case "file":
		if c.DEM.Path == "" {
			return errors.New("dem.path is required for a file DEM source")
		}
	default:
		return fmt.Errorf("dem.source must be wcs or file, got %q", c.DEM.Source)
	}
	if c.DEM.CellSize <= 0 || c.DEM.HexEdge <= 0 {
		return errors.New("dem.cell_size and dem.hex_edge must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.CrossBorder.Retries < 0 || c.CrossBorder.RequestsPerSecond < 0 {
		return errors.New("crossborder.retries and crossborder.requests_per_second must not be negative")
	}
	return nil
}
