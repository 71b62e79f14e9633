package render

import (
	"bytes"
	"fmt"
	"html"
	"math"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
	"github.com/woozymasta/go3dep/internal/profile"
	"honnef.co/go/curve"
)

// ChartOptions sizes a profile chart.
type ChartOptions struct {
	Title  string
	Width  int
	Height int
}

const chartMargin = 40

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return m
}()

// ProfileSVG draws elevation against distance as a minified SVG document.
// Gaps are left where the elevation is NaN.
func ProfileSVG(p *profile.Profile, opts ChartOptions) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 300
	}
	stats := p.Stats()
	if stats.Valid == 0 {
		return nil, fmt.Errorf("profile has no valid elevations")
	}

	length := math.Max(stats.Length, 1)
	lo, hi := stats.MinElevation, stats.MaxElevation
	if hi-lo < 1 {
		lo, hi = lo-0.5, hi+0.5
	}

	plotW := float64(opts.Width - 2*chartMargin)
	plotH := float64(opts.Height - 2*chartMargin)
	// data space to SVG space, y pointing down
	aff := curve.Scale(plotW/length, -plotH/(hi-lo)).
		ThenTranslate(curve.Vec(chartMargin, chartMargin+plotH*hi/(hi-lo)))

	line, fill := profilePaths(p)
	line = line.Transform(aff)
	fill = fill.Transform(aff)
	svgOpts := curve.SVGOptions{MaxPrecision: 2}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)
	if opts.Title != "" {
		fmt.Fprintf(&buf, "  <title>%s</title>\n", html.EscapeString(opts.Title))
	}
	fmt.Fprintf(&buf, `  <rect x="0" y="0" width="%d" height="%d" fill="#ffffff" />`+"\n", opts.Width, opts.Height)
	fmt.Fprintf(&buf, `  <path d="%s" fill="#7fb057" fill-opacity="0.35" stroke="none" />`+"\n", fill.SVG(svgOpts))
	fmt.Fprintf(&buf, `  <path d="%s" fill="none" stroke="#1a6b3c" stroke-width="1.5" />`+"\n", line.SVG(svgOpts))
	fmt.Fprintf(&buf, `  <text x="%d" y="%d" font-size="11">%.1f m</text>`+"\n", 2, chartMargin, hi)
	fmt.Fprintf(&buf, `  <text x="%d" y="%d" font-size="11">%.1f m</text>`+"\n", 2, opts.Height-chartMargin, lo)
	fmt.Fprintf(&buf, `  <text x="%d" y="%d" font-size="11" text-anchor="end">%.0f m</text>`+"\n",
		opts.Width-chartMargin, opts.Height-chartMargin/2, stats.Length)
	buf.WriteString("</svg>\n")

	return minifier.Bytes("image/svg+xml", buf.Bytes())
}

// profilePaths returns the elevation polyline and the area below it, both
// in data coordinates.
func profilePaths(p *profile.Profile) (line, fill curve.BezPath) {
	lo := p.Stats().MinElevation

	var run []curve.Point
	flush := func() {
		if len(run) == 0 {
			return
		}
		line.MoveTo(run[0])
		for _, pt := range run[1:] {
			line.LineTo(pt)
		}
		fill.MoveTo(curve.Pt(run[0].X, lo))
		for _, pt := range run {
			fill.LineTo(pt)
		}
		fill.LineTo(curve.Pt(run[len(run)-1].X, lo))
		fill.ClosePath()
		run = run[:0]
	}

	for _, pt := range p.Points {
		if math.IsNaN(pt.Elevation) {
			flush()
			continue
		}
		run = append(run, curve.Pt(pt.Distance, pt.Elevation))
	}
	flush()
	return line, fill
}
