package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/woozymasta/go3dep/internal/crs"
	"golang.org/x/image/tiff/lzw"
)

// ErrUnsupportedTIFF is returned for TIFF layouts the decoder does not handle.
var ErrUnsupportedTIFF = errors.New("unsupported TIFF")

// TIFF tags used by the codec.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagPredictor        = 317
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagModelTransform   = 34264
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
	geoKeyModelType     = 1024
	geoKeyRasterType    = 1025
	geoKeyGeographic    = 2048
	geoKeyProjected     = 3072
	geoKeyUserDefined   = 32767
	rasterPixelIsPoint  = 2
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionDeflate2 = 32946
	sampleUint          = 1
	sampleInt           = 2
	sampleFloat         = 3
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeLong8     = 16
)

var typeSizes = map[uint16]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4, typeSRational: 8,
	typeFloat: 4, typeDouble: 8, typeLong8: 8,
}

type ifdEntry struct {
	raw   []byte
	count uint32
	typ   uint16
}

func (e ifdEntry) uints(bo binary.ByteOrder) []uint64 {
	out := make([]uint64, 0, e.count)
	for i := 0; i < int(e.count); i++ {
		switch e.typ {
		case typeByte, typeUndefined:
			out = append(out, uint64(e.raw[i]))
		case typeSByte:
			out = append(out, uint64(int8(e.raw[i])))
		case typeShort, typeSShort:
			out = append(out, uint64(bo.Uint16(e.raw[2*i:])))
		case typeLong, typeSLong:
			out = append(out, uint64(bo.Uint32(e.raw[4*i:])))
		case typeLong8:
			out = append(out, bo.Uint64(e.raw[8*i:]))
		}
	}
	return out
}

func (e ifdEntry) floats(bo binary.ByteOrder) []float64 {
	switch e.typ {
	case typeDouble:
		out := make([]float64, e.count)
		for i := range out {
			out[i] = math.Float64frombits(bo.Uint64(e.raw[8*i:]))
		}
		return out
	case typeFloat:
		out := make([]float64, e.count)
		for i := range out {
			out[i] = float64(math.Float32frombits(bo.Uint32(e.raw[4*i:])))
		}
		return out
	}

	u := e.uints(bo)
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = float64(v)
	}
	return out
}

func (e ifdEntry) ascii() string {
	return strings.TrimRight(string(e.raw), "\x00 ")
}

type tiffFile struct {
	bo      binary.ByteOrder
	data    []byte
	entries map[uint16]ifdEntry
}

// first returns the first integer value of tag, or def when the tag is
// missing or not integer typed.
func (f *tiffFile) first(tag uint16, def uint64) uint64 {
	e, ok := f.entries[tag]
	if !ok || e.count == 0 {
		return def
	}
	if v := e.uints(f.bo); len(v) > 0 {
		return v[0]
	}
	return def
}

func (f *tiffFile) list(tag uint16) []uint64 {
	e, ok := f.entries[tag]
	if !ok {
		return nil
	}
	return e.uints(f.bo)
}

// Decode reads the first band of a GeoTIFF.
func Decode(r io.Reader) (*Raster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// maxDecodePixels caps the size of a decoded image.
const maxDecodePixels = 1 << 28

// DecodeBytes parses the first band of an in-memory GeoTIFF.
// Georeferencing is taken from ModelPixelScale and ModelTiepoint (or
// ModelTransformation); the CRS from the GeoKey directory; nodata from the
// GDAL_NODATA tag. A TIFF without georeferencing decodes with a unit pixel
// transform and an empty CRS.
func DecodeBytes(data []byte) (*Raster, error) {
	f, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	width := int(f.first(tagImageWidth, 0))
	height := int(f.first(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrUnsupportedTIFF, width, height)
	}
	if width > maxDecodePixels/height {
		return nil, fmt.Errorf("%w: image is too large (%dx%d)", ErrUnsupportedTIFF, width, height)
	}

	r := New(width, height, GeoTransform{PixelWidth: 1, PixelHeight: -1}, "", math.NaN())
	if err := f.readPixels(r); err != nil {
		return nil, err
	}
	f.readGeo(r)
	return r, nil
}

func parseHeader(data []byte) (*tiffFile, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: short header", ErrUnsupportedTIFF)
	}

	f := &tiffFile{data: data, entries: map[uint16]ifdEntry{}}
	switch string(data[:2]) {
	case "II":
		f.bo = binary.LittleEndian
	case "MM":
		f.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark %q", ErrUnsupportedTIFF, data[:2])
	}

	if magic := f.bo.Uint16(data[2:4]); magic != 42 {
		return nil, fmt.Errorf("%w: magic %d (BigTIFF is not supported)", ErrUnsupportedTIFF, magic)
	}

	off := int(f.bo.Uint32(data[4:8]))
	if off+2 > len(data) {
		return nil, fmt.Errorf("%w: IFD offset %d out of range", ErrUnsupportedTIFF, off)
	}
	n := int(f.bo.Uint16(data[off:]))
	if off+2+12*n > len(data) {
		return nil, fmt.Errorf("%w: truncated IFD", ErrUnsupportedTIFF)
	}

	for i := range n {
		b := data[off+2+12*i:]
		tag := f.bo.Uint16(b[0:2])
		typ := f.bo.Uint16(b[2:4])
		count := f.bo.Uint32(b[4:8])

		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := size * int(count)

		var raw []byte
		if total <= 4 {
			raw = b[8 : 8+total]
		} else {
			vo := int(f.bo.Uint32(b[8:12]))
			if vo < 0 || vo+total > len(data) {
				return nil, fmt.Errorf("%w: tag %d value out of range", ErrUnsupportedTIFF, tag)
			}
			raw = data[vo : vo+total]
		}
		f.entries[tag] = ifdEntry{typ: typ, count: count, raw: raw}
	}
	return f, nil
}

func (f *tiffFile) readPixels(r *Raster) error {
	bps := int(f.first(tagBitsPerSample, 1))
	spp := int(f.first(tagSamplesPerPixel, 1))
	format := int(f.first(tagSampleFormat, sampleUint))
	compression := int(f.first(tagCompression, compressionNone))
	predictor := int(f.first(tagPredictor, 1))
	planar := int(f.first(tagPlanarConfig, 1))

	if bps%8 != 0 || bps > 64 {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedTIFF, bps)
	}
	bytesPerSample := bps / 8
	if planar == 2 {
		spp = 1 // the first plane holds band 1
	}

	tw, th := r.Width, int(f.first(tagRowsPerStrip, uint64(r.Height)))
	offsets, counts := f.list(tagStripOffsets), f.list(tagStripByteCounts)
	tiled := false
	if _, ok := f.entries[tagTileWidth]; ok {
		tw, th = int(f.first(tagTileWidth, 0)), int(f.first(tagTileLength, 0))
		offsets, counts = f.list(tagTileOffsets), f.list(tagTileByteCounts)
		tiled = true
	}
	if tw <= 0 || th <= 0 {
		return fmt.Errorf("%w: chunk size %dx%d", ErrUnsupportedTIFF, tw, th)
	}
	th = min(th, r.Height)
	if !tiled {
		th = max(th, 1)
	}

	across := (r.Width + tw - 1) / tw
	down := (r.Height + th - 1) / th
	if len(offsets) < across*down || len(counts) < across*down {
		return fmt.Errorf("%w: %d chunks listed, %d needed", ErrUnsupportedTIFF, len(offsets), across*down)
	}

	for i := range across * down {
		cx, cy := i%across, i/across
		start, n := int(offsets[i]), int(counts[i])
		if start < 0 || start+n > len(f.data) {
			return fmt.Errorf("%w: chunk %d out of range", ErrUnsupportedTIFF, i)
		}

		buf, err := decompress(f.data[start:start+n], compression)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}

		rows := th
		if !tiled {
			rows = min(th, r.Height-cy*th)
		}
		rowBytes := tw * spp * bytesPerSample
		if len(buf) < rows*rowBytes {
			return fmt.Errorf("%w: chunk %d holds %d bytes, want %d", ErrUnsupportedTIFF, i, len(buf), rows*rowBytes)
		}

		bo := f.bo
		switch predictor {
		case 1:
		case 2:
			for row := range rows {
				undoHorizontal(buf[row*rowBytes:(row+1)*rowBytes], spp, bytesPerSample, bo)
			}
		case 3:
			for row := range rows {
				undoFloatPredictor(buf[row*rowBytes:(row+1)*rowBytes], bytesPerSample)
			}
			bo = binary.BigEndian
		default:
			return fmt.Errorf("%w: predictor %d", ErrUnsupportedTIFF, predictor)
		}

		for row := range rows {
			y := cy*th + row
			if y >= r.Height {
				break
			}
			for col := range tw {
				x := cx*tw + col
				if x >= r.Width {
					break
				}
				o := ((row*tw + col) * spp) * bytesPerSample
				v, err := readSample(buf[o:o+bytesPerSample], format, bo)
				if err != nil {
					return err
				}
				r.Set(x, y, v)
			}
		}
	}
	return nil
}

func decompress(raw []byte, compression int) ([]byte, error) {
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	case compressionDeflate, compressionDeflate2:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return io.ReadAll(zr)
	}
	return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedTIFF, compression)
}

// undoHorizontal reverses horizontal differencing in one row.
func undoHorizontal(row []byte, spp, size int, bo binary.ByteOrder) {
	stride := spp * size
	for i := stride; i+size <= len(row); i += size {
		prev := i - stride
		switch size {
		case 1:
			row[i] += row[prev]
		case 2:
			bo.PutUint16(row[i:], bo.Uint16(row[i:])+bo.Uint16(row[prev:]))
		case 4:
			bo.PutUint32(row[i:], bo.Uint32(row[i:])+bo.Uint32(row[prev:]))
		case 8:
			bo.PutUint64(row[i:], bo.Uint64(row[i:])+bo.Uint64(row[prev:]))
		}
	}
}

// undoFloatPredictor reverses the floating point predictor in one row.
// The result holds big-endian samples.
func undoFloatPredictor(row []byte, size int) {
	for i := 1; i < len(row); i++ {
		row[i] += row[i-1]
	}

	n := len(row) / size
	tmp := make([]byte, len(row))
	copy(tmp, row)
	for k := range n {
		for b := range size {
			row[k*size+b] = tmp[b*n+k]
		}
	}
}

func readSample(b []byte, format int, bo binary.ByteOrder) (float64, error) {
	switch format {
	case sampleUint:
		switch len(b) {
		case 1:
			return float64(b[0]), nil
		case 2:
			return float64(bo.Uint16(b)), nil
		case 4:
			return float64(bo.Uint32(b)), nil
		case 8:
			return float64(bo.Uint64(b)), nil
		}
	case sampleInt:
		switch len(b) {
		case 1:
			return float64(int8(b[0])), nil
		case 2:
			return float64(int16(bo.Uint16(b))), nil
		case 4:
			return float64(int32(bo.Uint32(b))), nil
		case 8:
			return float64(int64(bo.Uint64(b))), nil
		}
	case sampleFloat:
		switch len(b) {
		case 4:
			return float64(math.Float32frombits(bo.Uint32(b))), nil
		case 8:
			return math.Float64frombits(bo.Uint64(b)), nil
		}
	}
	return 0, fmt.Errorf("%w: sample format %d with %d bytes", ErrUnsupportedTIFF, format, len(b))
}

func (f *tiffFile) readGeo(r *Raster) {
	if e, ok := f.entries[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(e.ascii(), 64); err == nil {
			r.NoData = v
		}
	}

	scale, hasScale := f.entries[tagModelPixelScale]
	tie, hasTie := f.entries[tagModelTiepoint]
	switch {
	case hasScale && hasTie:
		s := scale.floats(f.bo)
		t := tie.floats(f.bo)
		if len(s) >= 2 && len(t) >= 6 {
			r.Transform = GeoTransform{
				OriginX:     t[3] - t[0]*s[0],
				OriginY:     t[4] + t[1]*s[1],
				PixelWidth:  s[0],
				PixelHeight: -s[1],
			}
		}
	default:
		if e, ok := f.entries[tagModelTransform]; ok {
			if m := e.floats(f.bo); len(m) >= 8 {
				r.Transform = GeoTransform{OriginX: m[3], OriginY: m[7], PixelWidth: m[0], PixelHeight: m[5]}
			}
		}
	}

	keys := f.geoKeys()
	if keys[geoKeyRasterType] == rasterPixelIsPoint {
		r.Transform.OriginX -= r.Transform.PixelWidth / 2
		r.Transform.OriginY -= r.Transform.PixelHeight / 2
	}
	if code := keys[geoKeyProjected]; code != 0 && code != geoKeyUserDefined {
		r.CRS = crs.FromEPSG(code)
	} else if code := keys[geoKeyGeographic]; code != 0 && code != geoKeyUserDefined {
		r.CRS = crs.FromEPSG(code)
	}
}

// geoKeys returns the short-valued keys of the GeoKey directory.
func (f *tiffFile) geoKeys() map[int]int {
	out := map[int]int{}
	e, ok := f.entries[tagGeoKeyDirectory]
	if !ok {
		return out
	}

	v := e.uints(f.bo)
	if len(v) < 4 {
		return out
	}
	n := int(v[3])
	for i := range n {
		k := 4 + 4*i
		if k+3 >= len(v) {
			break
		}
		// location 0 means the value is stored inline
		if v[k+1] == 0 {
			out[int(v[k])] = int(v[k+3])
		}
	}
	return out
}
