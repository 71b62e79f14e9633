// Package render draws previews of rasters and profiles.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/go3dep/internal/raster"
	xdraw "golang.org/x/image/draw"
)

// WebPQuality is used for every lossy WebP written by the package.
const WebPQuality = 85

type stop struct {
	at float64
	c  color.NRGBA
}

// hypsometric tints from lowland green to summit white
var ramp = []stop{
	{0, color.NRGBA{R: 0x1a, G: 0x6b, B: 0x3c, A: 0xff}},
	{0.25, color.NRGBA{R: 0x7f, G: 0xb0, B: 0x57, A: 0xff}},
	{0.5, color.NRGBA{R: 0xe8, G: 0xd5, B: 0x8c, A: 0xff}},
	{0.75, color.NRGBA{R: 0xa6, G: 0x6a, B: 0x3d, A: 0xff}},
	{1, color.NRGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}},
}

func rampColor(t float64) color.NRGBA {
	if t <= 0 {
		return ramp[0].c
	}
	for i := 1; i < len(ramp); i++ {
		if t <= ramp[i].at {
			a, b := ramp[i-1], ramp[i]
			f := (t - a.at) / (b.at - a.at)
			lerp := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + f*(float64(y)-float64(x)))) }
			return color.NRGBA{R: lerp(a.c.R, b.c.R), G: lerp(a.c.G, b.c.G), B: lerp(a.c.B, b.c.B), A: 0xff}
		}
	}
	return ramp[len(ramp)-1].c
}

// Colorize maps the values of r onto a hypsometric ramp stretched between
// the raster minimum and maximum. Nodata cells are transparent.
func Colorize(r *raster.Raster) *image.NRGBA {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range r.Data {
		if r.IsNoData(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	if !(span > 0) {
		span = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for row := range r.Height {
		for col := range r.Width {
			v := r.At(col, row)
			if r.IsNoData(v) {
				continue
			}
			img.SetNRGBA(col, row, rampColor((v-lo)/span))
		}
	}
	return img
}

// Preview renders r so that its longer side is size pixels.
func Preview(r *raster.Raster, size int) image.Image {
	src := Colorize(r)
	if size <= 0 || (r.Width <= size && r.Height <= size) {
		return src
	}

	scale := float64(size) / float64(max(r.Width, r.Height))
	w := max(int(math.Round(float64(r.Width)*scale)), 1)
	h := max(int(math.Round(float64(r.Height)*scale)), 1)

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// EncodeWebP writes img as lossy WebP.
func EncodeWebP(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: WebPQuality})
}

// WriteWebP writes img to path, creating parent directories.
func WriteWebP(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return EncodeWebP(f, img)
}

// WriteTiles slices img into a z/x/y.webp pyramid under baseDir with zoom
// levels 0 through zoomLimit. Existing tiles are kept unless force is set.
func WriteTiles(img image.Image, baseDir string, zoomLimit, tileSize int, force bool) (int, error) {
	if tileSize <= 0 {
		tileSize = 256
	}

	var (
		mu       sync.Mutex
		written  int
		firstErr error
	)

	for z := 0; z <= zoomLimit; z++ {
		gridSize := 1 << z
		totalPixels := gridSize * tileSize

		log.Debug().
			Int("zoom", z).
			Int("grid", gridSize).
			Int("px", totalPixels).
			Msg("Processing zoom level")

		dstImg := image.NewRGBA(image.Rect(0, 0, totalPixels, totalPixels))
		xdraw.CatmullRom.Scale(dstImg, dstImg.Bounds(), img, img.Bounds(), draw.Over, nil)

		var wg sync.WaitGroup
		sem := make(chan struct{}, 20)

		for x := range gridSize {
			for y := range gridSize {
				wg.Add(1)
				sem <- struct{}{}

				go func(zx, zy int) {
					defer wg.Done()
					defer func() { <-sem }()

					rect := image.Rect(zx*tileSize, zy*tileSize, (zx+1)*tileSize, (zy+1)*tileSize)
					outPath := filepath.Join(baseDir, fmt.Sprint(z), fmt.Sprint(zx), fmt.Sprint(zy)+".webp")

					if !force {
						if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
							return
						}
					}

					err := WriteWebP(outPath, dstImg.SubImage(rect))

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						log.Error().Err(err).Str("path", outPath).Msg("Failed to write tile")
						if firstErr == nil {
							firstErr = err
						}
						return
					}
					written++
				}(x, y)
			}
		}
		wg.Wait()
	}

	return written, firstErr
}
