// Package config handles configuration loading and shared settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Services Services `yaml:"services" json:"services"`
	HTTP     HTTP     `yaml:"http" json:"http"`
	Profile  Profile  `yaml:"profile" json:"profile"`
	Cache    Cache    `yaml:"cache" json:"cache"`
	Grid     Grid     `yaml:"grid" json:"grid"`
}

// Services lists remote endpoints used to retrieve elevation data.
type Services struct {
	WMS         string `yaml:"wms" json:"wms"`
	ImageServer string `yaml:"image_server" json:"image_server"`
	Index       string `yaml:"index" json:"index"`
	EPQS        string `yaml:"epqs" json:"epqs"`
	AirMap      string `yaml:"airmap" json:"airmap"`
	AirMapKey   string `yaml:"airmap_key,omitempty" json:"-"`
}

// HTTP tunes the retrieval client.
type HTTP struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Retries     int           `yaml:"retries" json:"retries"`
	Backoff     time.Duration `yaml:"backoff" json:"backoff"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"` // point query workers
	MaxPixels   int           `yaml:"max_pixels" json:"max_pixels"`   // per WMS request
	UserAgent   string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// Profile holds elevation profile settings.
type Profile struct {
	WorkingCRS     string  `yaml:"working_crs" json:"working_crs"`
	BufferFactor   float64 `yaml:"buffer_factor" json:"buffer_factor"`
	MaxRefinements int     `yaml:"max_refinements" json:"max_refinements"`
	MaxSamples     int     `yaml:"max_samples" json:"max_samples"` // spline samples per evaluation
	Method         string  `yaml:"method" json:"method"`           // nearest | linear
}

// Cache selects the response cache backend.
type Cache struct {
	Backend string        `yaml:"backend" json:"backend"` // none | memory | sqlite | valkey
	Path    string        `yaml:"path,omitempty" json:"path,omitempty"`
	Addr    string        `yaml:"addr,omitempty" json:"addr,omitempty"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
	Size    int64         `yaml:"size" json:"size"`
}

// Grid holds defaults for gridded datasets.
type Grid struct {
	XDim string `yaml:"x_dim" json:"x_dim"`
	YDim string `yaml:"y_dim" json:"y_dim"`
}

// Default returns a configuration pointing at the public 3DEP services.
func Default() *Config {
	return &Config{
		Services: Services{
			WMS:         "https://elevation.nationalmap.gov/arcgis/services/3DEPElevation/ImageServer/WMSServer",
			ImageServer: "https://elevation.nationalmap.gov/arcgis/rest/services/3DEPElevation/ImageServer",
			Index:       "https://index.nationalmap.gov/arcgis/rest/services/3DEPElevationIndex/MapServer",
			EPQS:        "https://epqs.nationalmap.gov/v1/json",
			AirMap:      "https://api.airmap.com/elevation/v1/ele",
		},
		HTTP: HTTP{
			Timeout:     60 * time.Second,
			Retries:     3,
			Backoff:     500 * time.Millisecond,
			Concurrency: 5,
			MaxPixels:   10_000_000,
			UserAgent:   "go3dep",
		},
		Profile: Profile{
			WorkingCRS:     "EPSG:5070",
			BufferFactor:   5,
			MaxRefinements: 8,
			MaxSamples:     4_000_000,
			Method:         "nearest",
		},
		Cache: Cache{
			Backend: "memory",
			Path:    "cache.sqlite",
			TTL:     24 * time.Hour,
			Size:    512,
		},
		Grid: Grid{
			XDim: "x",
			YDim: "y",
		},
	}
}

// Load reads and parses the YAML configuration file from the specified path.
// Values missing from the file keep their defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	var errs []error

	if c.Services.WMS == "" {
		errs = append(errs, errors.New("services.wms is required"))
	}
	if c.HTTP.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("http.concurrency must be positive, got %d", c.HTTP.Concurrency))
	}
	if c.HTTP.Retries < 0 {
		errs = append(errs, fmt.Errorf("http.retries must not be negative, got %d", c.HTTP.Retries))
	}
	if c.HTTP.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("http.max_pixels must be positive, got %d", c.HTTP.MaxPixels))
	}
	if c.Profile.MaxRefinements <= 0 {
		errs = append(errs, fmt.Errorf("profile.max_refinements must be positive, got %d", c.Profile.MaxRefinements))
	}
	if c.Profile.MaxSamples <= 0 {
		errs = append(errs, fmt.Errorf("profile.max_samples must be positive, got %d", c.Profile.MaxSamples))
	}
	if c.Profile.BufferFactor < 0 {
		errs = append(errs, fmt.Errorf("profile.buffer_factor must not be negative, got %g", c.Profile.BufferFactor))
	}
	switch c.Profile.Method {
	case "nearest", "linear":
	default:
		errs = append(errs, fmt.Errorf("profile.method must be nearest or linear, got %q", c.Profile.Method))
	}
	switch c.Cache.Backend {
	case "", "none", "memory", "sqlite", "valkey":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend))
	}
	if c.Cache.Backend == "valkey" && c.Cache.Addr == "" {
		errs = append(errs, errors.New("cache.addr is required for the valkey backend"))
	}
	if c.Grid.XDim == "" || c.Grid.YDim == "" || c.Grid.XDim == c.Grid.YDim {
		errs = append(errs, fmt.Errorf("grid dims must be distinct and non-empty, got %q/%q", c.Grid.YDim, c.Grid.XDim))
	}

	return errors.Join(errs...)
}
