package server

import (
	"bytes"
	"context"
	"image"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/profile"
	"github.com/woozymasta/go3dep/internal/render"
)

// Elevation is the part of the elevation service used by the handlers.
type Elevation interface {
	ElevationProfile(ctx context.Context, g orb.Geometry, opts profile.Options) (*profile.Profile, error)
	ElevationByCoords(ctx context.Context, pts []orb.Point, c crs.CRS, src elevation.Source) ([]float64, error)
	CheckAvailability(ctx context.Context, bound orb.Bound, c crs.CRS) (map[string]bool, error)
}

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config          *config.Config
	Elevation       Elevation
	TilesDir        string
	TransparentTile []byte
}

// NewServerContext wires the handlers to svc. Preview tiles are served
// from tilesDir when it is not empty.
func NewServerContext(cfg *config.Config, svc Elevation, tilesDir string) *ServerContext {
	var tile bytes.Buffer
	empty := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	if err := render.EncodeWebP(&tile, empty); err != nil {
		log.Warn().Err(err).Msg("Failed to encode transparent tile")
	}

	log.Info().
		Str("wms", cfg.Services.WMS).
		Str("cache", cfg.Cache.Backend).
		Str("tiles", tilesDir).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:          cfg,
		Elevation:       svc,
		TilesDir:        tilesDir,
		TransparentTile: tile.Bytes(),
	}
}
