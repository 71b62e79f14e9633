package main

import (
	"context"
	"errors"
	"os"

	"github.com/woozymasta/go3dep/internal/cache"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/profile"
	"github.com/woozymasta/go3dep/internal/render"

	"github.com/rs/zerolog/log"
)

// ProfileCommand samples elevation along every line of a GeoJSON file.
type ProfileCommand struct {
	Geometry   string  `short:"g" long:"geometry" required:"true" description:"GeoJSON file with LineString or MultiLineString geometries"`
	CRS        string  `long:"crs"                description:"CRS of the input and output coordinates" default:"EPSG:4326"`
	Spacing    float64 `short:"s" long:"spacing"  description:"Distance between profile points in meters" default:"10"`
	Resolution float64 `short:"r" long:"res"      description:"DEM resolution in meters" default:"10"`
	Out        string  `short:"o" long:"out"      description:"Output GeoJSON file, - for stdout" default:"-"`
	SVG        string  `long:"svg"                description:"Also draw the profile to this SVG file"`
}

func (c *ProfileCommand) Execute([]string) error {
	geoms, err := readGeometries(c.Geometry)
	if err != nil {
		return err
	}
	pc, err := crs.Parse(c.CRS)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	for i, g := range geoms {
		p, err := svc.ElevationProfile(context.Background(), g, profile.Options{
			CRS:        pc,
			Spacing:    c.Spacing,
			Resolution: c.Resolution,
		})
		if err != nil {
			return err
		}

		st := p.Stats()
		log.Info().
			Int("item", i).
			Int("points", p.Len()).
			Float64("length", st.Length).
			Float64("gain", st.Gain).
			Float64("loss", st.Loss).
			Msg("Profile computed")

		if err := writeJSON(withIndex(c.Out, i, len(geoms)), p.FeatureCollection()); err != nil {
			return err
		}
		if c.SVG != "" {
			out, err := render.ProfileSVG(p, render.ChartOptions{})
			if err != nil {
				return err
			}
			if err := os.WriteFile(withIndex(c.SVG, i, len(geoms)), out, 0644); err != nil {
				return err
			}
		}
	}

	log.Info().Msgf("Retrieved topography data for %d item(s).", len(geoms))
	return nil
}

// AvailabilityCommand reports which index resolutions cover a bbox.
type AvailabilityCommand struct {
	BBox string `short:"b" long:"bbox" required:"true" description:"minx,miny,maxx,maxy in --crs"`
	CRS  string `long:"crs"            description:"CRS of the bbox" default:"EPSG:4326"`
}

func (c *AvailabilityCommand) Execute([]string) error {
	b, err := parseBBox(c.BBox)
	if err != nil {
		return err
	}
	bc, err := crs.Parse(c.CRS)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	avail, err := svc.CheckAvailability(context.Background(), b, bc)
	if err != nil {
		return err
	}
	return writeJSON("-", avail)
}

// SourcesCommand lists the source datasets intersecting a bbox.
type SourcesCommand struct {
	BBox        string   `short:"b" long:"bbox" required:"true" description:"minx,miny,maxx,maxy in --crs"`
	CRS         string   `long:"crs"            description:"CRS of the bbox" default:"EPSG:4326"`
	Resolutions []string `short:"r" long:"res"  description:"Index resolution to query, repeatable; all when omitted"`
	Out         string   `short:"o" long:"out"  description:"Output GeoJSON file, - for stdout" default:"-"`
}

func (c *SourcesCommand) Execute([]string) error {
	b, err := parseBBox(c.BBox)
	if err != nil {
		return err
	}
	bc, err := crs.Parse(c.CRS)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	src, err := svc.QuerySources(context.Background(), b, bc, c.Resolutions...)
	if err != nil {
		return err
	}

	log.Info().Msgf("Retrieved topography data for %d item(s).", len(src))
	return writeJSON(c.Out, elevation.SourcesCollection(src))
}

// PurgeCommand removes expired entries of the sqlite cache.
type PurgeCommand struct{}

func (c *PurgeCommand) Execute([]string) error {
	db, ok := store.(*cache.SQLite)
	if !ok {
		return errors.New("cache-purge needs the sqlite cache backend")
	}

	n, err := db.Purge(context.Background())
	if err != nil {
		return err
	}
	log.Info().Int64("removed", n).Str("path", cfg.Cache.Path).Msg("Cache purged")
	return nil
}
