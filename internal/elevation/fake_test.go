package elevation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/go3dep/internal/config"
	"github.com/woozymasta/go3dep/internal/crs"
	"github.com/woozymasta/go3dep/internal/fetch"
	"github.com/woozymasta/go3dep/internal/raster"
)

const capabilitiesXML = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0">
  <Capability>
    <Layer>
      <CRS>EPSG:4326</CRS>
      <CRS>EPSG:3857</CRS>
      <Layer>
        <CRS>EPSG:5070</CRS>
        <CRS>CRS:84</CRS>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

// fake3DEP serves rasters whose cell values equal the y coordinate of the
// cell center, so georeferencing can be checked from the data.
type fake3DEP struct {
	srv *httptest.Server

	caps    atomic.Int32
	getMap  atomic.Int32
	export  atomic.Int32
	epqs    atomic.Int32
	airmap  atomic.Int32
	airKey  atomic.Value
	indexFn func(w http.ResponseWriter, r *http.Request, layer int)

	// capsGate, when set, holds GetCapabilities responses until closed.
	capsGate chan struct{}
}

func newFake3DEP(t *testing.T) *fake3DEP {
	t.Helper()
	f := &fake3DEP{}

	mux := http.NewServeMux()
	mux.HandleFunc("/wms", f.handleWMS)
	mux.HandleFunc("/image/exportImage", f.handleExport)
	mux.HandleFunc("/epqs", f.handleEPQS)
	mux.HandleFunc("/airmap", f.handleAirMap)
	mux.HandleFunc("/index/{layer}/query", func(w http.ResponseWriter, r *http.Request) {
		layer, _ := strconv.Atoi(r.PathValue("layer"))
		if f.indexFn == nil {
			http.NotFound(w, r)
			return
		}
		f.indexFn(w, r, layer)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fake3DEP) config() *config.Config {
	cfg := config.Default()
	cfg.Services.WMS = f.srv.URL + "/wms"
	cfg.Services.ImageServer = f.srv.URL + "/image"
	cfg.Services.Index = f.srv.URL + "/index"
	cfg.Services.EPQS = f.srv.URL + "/epqs"
	cfg.Services.AirMap = f.srv.URL + "/airmap"
	cfg.HTTP.Retries = 0
	return cfg
}

func (f *fake3DEP) service(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s, err := New(cfg, fetch.New(f.srv.Client(), nil, cfg.HTTP))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func (f *fake3DEP) handleWMS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("request") == "GetCapabilities" {
		f.caps.Add(1)
		if f.capsGate != nil {
			<-f.capsGate
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(capabilitiesXML))
		return
	}
	f.getMap.Add(1)

	if !strings.HasPrefix(q.Get("layers"), layerPrefix) {
		_, _ = w.Write([]byte(`<ServiceExceptionReport><ServiceException>bad layer</ServiceException></ServiceExceptionReport>`))
		return
	}

	c := crs.CRS(q.Get("crs"))
	bbox := parseFloats(q.Get("bbox"))
	if c.IsGeographic() {
		bbox = []float64{bbox[1], bbox[0], bbox[3], bbox[2]}
	}
	width, _ := strconv.Atoi(q.Get("width"))
	height, _ := strconv.Atoi(q.Get("height"))
	writeRaster(w, bbox, width, height, c)
}

func (f *fake3DEP) handleExport(w http.ResponseWriter, r *http.Request) {
	f.export.Add(1)
	q := r.URL.Query()
	size := parseFloats(q.Get("size"))
	code, _ := strconv.Atoi(q.Get("imageSR"))
	writeRaster(w, parseFloats(q.Get("bbox")), int(size[0]), int(size[1]), crs.FromEPSG(code))
}

func (f *fake3DEP) handleEPQS(w http.ResponseWriter, r *http.Request) {
	f.epqs.Add(1)
	q := r.URL.Query()
	x, _ := strconv.ParseFloat(q.Get("x"), 64)
	y, _ := strconv.ParseFloat(q.Get("y"), 64)
	v := fmt.Sprintf("%q", strconv.FormatFloat(x+y, 'f', -1, 64))
	if x == 0 && y == 0 {
		v = "-1000000"
	}
	_, _ = fmt.Fprintf(w, `{"location":{"x":%g,"y":%g},"value":%s}`, x, y, v)
}

func (f *fake3DEP) handleAirMap(w http.ResponseWriter, r *http.Request) {
	f.airmap.Add(1)
	f.airKey.Store(r.Header.Get("X-API-Key"))
	vals := parseFloats(r.URL.Query().Get("points"))
	data := make([]float64, 0, len(vals)/2)
	for i := 0; i+1 < len(vals); i += 2 {
		data = append(data, vals[i])
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

func writeRaster(w http.ResponseWriter, bbox []float64, width, height int, c crs.CRS) {
	r := raster.New(width, height, raster.GeoTransform{
		OriginX:     bbox[0],
		OriginY:     bbox[3],
		PixelWidth:  (bbox[2] - bbox[0]) / float64(width),
		PixelHeight: -(bbox[3] - bbox[1]) / float64(height),
	}, c, -9999)
	for row := range height {
		for col := range width {
			_, y := r.Center(col, row)
			r.Set(col, row, y)
		}
	}

	var buf bytes.Buffer
	if err := raster.Encode(&buf, r, nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/tiff")
	_, _ = w.Write(buf.Bytes())
}

func parseFloats(s string) []float64 {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err == nil {
			out = append(out, v)
		}
	}
	return out
}
