package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/elevation"
	"github.com/woozymasta/go3dep/internal/geo"
	"github.com/woozymasta/go3dep/internal/raster"
	"github.com/woozymasta/go3dep/internal/render"

	"github.com/rs/zerolog/log"
)

// PreviewOptions are shared by the raster commands.
type PreviewOptions struct {
	Preview  int    `long:"preview"   description:"Write a WebP preview with this longer side in pixels"`
	Tiles    string `long:"tiles"     description:"Write a WebP tile pyramid under this directory"`
	Zoom     int    `long:"zoom"      description:"Tiles zoom limit" default:"4"`
	TileSize int    `long:"tile-size" description:"Tile size in pixels" default:"256"`
	Force    bool   `short:"f" long:"force" description:"Force overwrite of existing tiles"`
}

func (p PreviewOptions) write(base string, r *raster.Raster) error {
	if p.Preview > 0 {
		if err := render.WriteWebP(base+".webp", render.Preview(r, p.Preview)); err != nil {
			return err
		}
	}
	if p.Tiles != "" {
		n, err := render.WriteTiles(render.Colorize(r), filepath.Join(p.Tiles, filepath.Base(base)), p.Zoom, p.TileSize, p.Force)
		if err != nil {
			return err
		}
		log.Debug().Str("name", filepath.Base(base)).Int("tiles", n).Msg("Tiles written")
	}
	return nil
}

// MapCommand retrieves WMS layers for every geometry of a GeoJSON file.
type MapCommand struct {
	PreviewOptions

	Geometry   string   `short:"g" long:"geometry" required:"true" description:"GeoJSON file with the areas of interest"`
	GeoCRS     string   `long:"geo-crs"  description:"CRS of the input geometry" default:"EPSG:4326"`
	CRS        string   `long:"crs"      description:"CRS of the output rasters" default:"EPSG:4326"`
	Layers     []string `short:"l" long:"layer" description:"Layer to retrieve, repeatable" default:"DEM"`
	Resolution float64  `short:"r" long:"res"   description:"Resolution in meters" default:"10"`
	Out        string   `short:"o" long:"out"   description:"Output directory" default:"."`
}

func (c *MapCommand) Execute([]string) error {
	geoms, err := readGeometries(c.Geometry)
	if err != nil {
		return err
	}
	geoCRS, outCRS, err := parseCRSPair(c.GeoCRS, c.CRS)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	for i, g := range geoms {
		maps, err := svc.GetMap(context.Background(), elevation.MapRequest{
			Geometry:   g,
			GeoCRS:     geoCRS,
			CRS:        outCRS,
			Layers:     c.Layers,
			Resolution: c.Resolution,
		})
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		for name, r := range maps {
			base := filepath.Join(c.Out, indexed(name, i, len(geoms)))
			if err := writeGeoTIFF(base+".tif", r); err != nil {
				return err
			}
			if err := c.PreviewOptions.write(base, r); err != nil {
				return err
			}
		}
	}

	log.Info().Msgf("Retrieved topography data for %d item(s).", len(geoms))
	return nil
}

// DEMCommand retrieves a DEM for every geometry of a GeoJSON file.
type DEMCommand struct {
	PreviewOptions

	Geometry   string  `short:"g" long:"geometry" required:"true" description:"GeoJSON file with the areas of interest"`
	GeoCRS     string  `long:"geo-crs" description:"CRS of the input geometry" default:"EPSG:4326"`
	CRS        string  `long:"crs"     description:"CRS of the output raster" default:"EPSG:4326"`
	Resolution float64 `short:"r" long:"res"  description:"Resolution in meters; 10, 30 and 60 use the seamless DEMs" default:"30"`
	Out        string  `short:"o" long:"out"  description:"Output directory" default:"."`
	Fill       bool    `long:"fill"            description:"Fill depressions"`
	Slope      bool    `long:"slope"           description:"Also retrieve slope in meter per meter"`
}

func (c *DEMCommand) Execute([]string) error {
	geoms, err := readGeometries(c.Geometry)
	if err != nil {
		return err
	}
	geoCRS, outCRS, err := parseCRSPair(c.GeoCRS, c.CRS)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	for i, g := range geoms {
		req := elevation.DEMRequest{Geometry: g, GeoCRS: geoCRS, CRS: outCRS, Resolution: c.Resolution}
		dem, err := svc.GetDEM(ctx, req)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		if c.Fill {
			dem = dem.FillDepressions()
		}

		base := filepath.Join(c.Out, indexed("elevation", i, len(geoms)))
		if err := writeGeoTIFF(base+".tif", dem); err != nil {
			return err
		}
		if err := c.PreviewOptions.write(base, dem); err != nil {
			return err
		}

		if c.Slope {
			maps, err := svc.GetMap(ctx, elevation.MapRequest{
				Geometry:   g,
				GeoCRS:     geoCRS,
				CRS:        outCRS,
				Layers:     []string{"Slope Degrees"},
				Resolution: c.Resolution,
			})
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			slope := maps[elevation.LayerName("Slope Degrees")]
			slope.Data = geo.DegToMPMSlice(slope.Data)
			slope.Name = "slope"
			slope.Attrs["units"] = "meters/meters"
			if err := writeGeoTIFF(filepath.Join(c.Out, indexed("slope", i, len(geoms)))+".tif", slope); err != nil {
				return err
			}
		}
	}

	log.Info().Msgf("Retrieved topography data for %d item(s).", len(geoms))
	return nil
}

// CoordsCommand looks up the elevation of points read from CSV.
type CoordsCommand struct {
	Input  string `short:"i" long:"input"  description:"CSV file with x,y columns, - for stdin" default:"-"`
	CRS    string `long:"crs"              description:"CRS of the coordinates" default:"EPSG:4326"`
	Source string `short:"s" long:"source" description:"Elevation source" choice:"tep" choice:"tnm" choice:"airmap" default:"tep"`
	Out    string `short:"o" long:"out"    description:"Output JSON file, - for stdout" default:"-"`
}

type coordRecord struct {
	Elevation *float64 `json:"elevation"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
}

func (c *CoordsCommand) Execute([]string) error {
	in := os.Stdin
	if c.Input != "-" {
		f, err := os.Open(c.Input)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	pts, err := readPoints(in)
	if err != nil {
		return err
	}
	src, err := elevation.ParseSource(c.Source)
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

	values, err := svc.ElevationByCoords(context.Background(), pts, pc, src)
	if err != nil {
		return err
	}

	elev := nullable(values)
	out := make([]coordRecord, len(pts))
	for i, p := range pts {
		out[i] = coordRecord{X: p[0], Y: p[1], Elevation: elev[i]}
	}

	log.Info().Msgf("Retrieved topography data for %d item(s).", len(out))
	return writeJSON(c.Out, out)
}

// GridCommand interpolates elevation on a regular grid over a bbox.
type GridCommand struct {
	BBox       string  `short:"b" long:"bbox" required:"true" description:"minx,miny,maxx,maxy in --crs"`
	Step       float64 `long:"step"           required:"true" description:"Grid spacing in units of --crs"`
	CRS        string  `long:"crs"            description:"CRS of the grid" default:"EPSG:4326"`
	Resolution float64 `short:"r" long:"res"  description:"DEM resolution in meters" default:"10"`
	Fill       bool    `long:"fill"           description:"Fill depressions of the DEM"`
	Out        string  `short:"o" long:"out"  description:"Output JSON file, - for stdout" default:"-"`
}

type gridRecord struct {
	Dims      elevation.AxisNames `json:"dims"`
	CRS       string              `json:"crs"`
	X         []float64           `json:"x"`
	Y         []float64           `json:"y"`
	Elevation [][]*float64        `json:"elevation"`
}

func (c *GridCommand) Execute([]string) error {
	b, err := parseBBox(c.BBox)
	if err != nil {
		return err
	}
	if !(c.Step > 0) {
		return fmt.Errorf("step must be positive, got %g", c.Step)
	}
	gc, err := crs.Parse(c.CRS)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}

	nx := int(math.Floor((b.Max[0]-b.Min[0])/c.Step)) + 1
	ny := int(math.Floor((b.Max[1]-b.Min[1])/c.Step)) + 1
	xs := geo.Linspace(b.Min[0], b.Min[0]+float64(nx-1)*c.Step, nx)
	ys := geo.Linspace(b.Max[1], b.Max[1]-float64(ny-1)*c.Step, ny)

	g := elevation.NewGrid(xs, ys, gc)
	g.Dims = elevation.AxisNames{Y: cfg.Grid.YDim, X: cfg.Grid.XDim}
	if c.Fill {
		filled, err := svc.ElevationByGrid(context.Background(), xs, ys, gc, c.Resolution, true)
		if err != nil {
			return err
		}
		g.Vars = filled.Vars
	} else if err := svc.AddElevation(context.Background(), g, c.Resolution, g.Dims, nil); err != nil {
		return err
	}

	rec := gridRecord{Dims: g.Dims, CRS: g.CRS.String(), X: g.X, Y: g.Y}
	for _, row := range g.Vars[elevation.ElevationVar] {
		rec.Elevation = append(rec.Elevation, nullable(row))
	}

	log.Info().Msgf("Retrieved topography data for %d item(s).", nx*ny)
	return writeJSON(c.Out, rec)
}

func parseCRSPair(a, b string) (crs.CRS, crs.CRS, error) {
	ca, err := crs.Parse(a)
	if err != nil {
		return "", "", err
	}
	cb, err := crs.Parse(b)
	if err != nil {
		return "", "", err
	}
	return ca, cb, nil
}

// indexed suffixes name with i when a file holds several items.
func indexed(name string, i, n int) string {
	if n <= 1 {
		return name
	}
	return name + "_" + strconv.Itoa(i)
}

// withIndex inserts the item index before the extension of path.
func withIndex(path string, i, n int) string {
	if n <= 1 || path == "" || path == "-" {
		return path
	}
	ext := filepath.Ext(path)
	return indexed(strings.TrimSuffix(path, ext), i, n) + ext
}
