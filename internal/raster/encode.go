package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"
	"sort"
	"strconv"
)

// EncodeOptions controls GeoTIFF output.
type EncodeOptions struct {
	Compress bool // deflate the pixel strip
}

type tiffTag struct {
	data  []byte
	tag   uint16
	typ   uint16
	count uint32
}

// tiffWriter lays out a single IFD classic TIFF with one strip.
type tiffWriter struct {
	bo   binary.ByteOrder
	tags []tiffTag
}

func (w *tiffWriter) shorts(tag uint16, v ...uint16) {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		w.bo.PutUint16(b[2*i:], x)
	}
	w.tags = append(w.tags, tiffTag{tag: tag, typ: typeShort, count: uint32(len(v)), data: b})
}

func (w *tiffWriter) longs(tag uint16, v ...uint32) {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		w.bo.PutUint32(b[4*i:], x)
	}
	w.tags = append(w.tags, tiffTag{tag: tag, typ: typeLong, count: uint32(len(v)), data: b})
}

func (w *tiffWriter) doubles(tag uint16, v ...float64) {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		w.bo.PutUint64(b[8*i:], math.Float64bits(x))
	}
	w.tags = append(w.tags, tiffTag{tag: tag, typ: typeDouble, count: uint32(len(v)), data: b})
}

func (w *tiffWriter) ascii(tag uint16, s string) {
	b := append([]byte(s), 0)
	w.tags = append(w.tags, tiffTag{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b})
}

// write emits the file. The strip offset tag is filled in from the layout.
func (w *tiffWriter) write(out io.Writer, strip []byte) error {
	w.longs(tagStripOffsets, 0)
	w.longs(tagStripByteCounts, uint32(len(strip)))
	sort.Slice(w.tags, func(i, j int) bool { return w.tags[i].tag < w.tags[j].tag })

	ifdSize := 2 + 12*len(w.tags) + 4
	next := 8 + ifdSize
	offsets := make([]int, len(w.tags))
	for i, t := range w.tags {
		if len(t.data) > 4 {
			offsets[i] = next
			next += len(t.data) + len(t.data)%2
		}
	}
	for i, t := range w.tags {
		if t.tag == tagStripOffsets {
			w.bo.PutUint32(w.tags[i].data, uint32(next))
		}
	}

	var buf bytes.Buffer
	if w.bo == binary.ByteOrder(binary.LittleEndian) {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	hdr := make([]byte, 6)
	w.bo.PutUint16(hdr[0:], 42)
	w.bo.PutUint32(hdr[2:], 8)
	buf.Write(hdr)

	cnt := make([]byte, 2)
	w.bo.PutUint16(cnt, uint16(len(w.tags)))
	buf.Write(cnt)
	for i, t := range w.tags {
		e := make([]byte, 12)
		w.bo.PutUint16(e[0:], t.tag)
		w.bo.PutUint16(e[2:], t.typ)
		w.bo.PutUint32(e[4:], t.count)
		if len(t.data) > 4 {
			w.bo.PutUint32(e[8:], uint32(offsets[i]))
		} else {
			copy(e[8:], t.data)
		}
		buf.Write(e)
	}
	buf.Write([]byte{0, 0, 0, 0})

	for _, t := range w.tags {
		if len(t.data) > 4 {
			buf.Write(t.data)
			if len(t.data)%2 == 1 {
				buf.WriteByte(0)
			}
		}
	}
	buf.Write(strip)

	_, err := out.Write(buf.Bytes())
	return err
}

// Encode writes r as a single band float32 GeoTIFF.
func Encode(out io.Writer, r *Raster, opts *EncodeOptions) error {
	if opts == nil {
		opts = &EncodeOptions{}
	}
	w := &tiffWriter{bo: binary.LittleEndian}

	strip := make([]byte, 4*len(r.Data))
	for i, v := range r.Data {
		w.bo.PutUint32(strip[4*i:], math.Float32bits(float32(v)))
	}

	compression := uint16(compressionNone)
	if opts.Compress {
		var zb bytes.Buffer
		zw := zlib.NewWriter(&zb)
		if _, err := zw.Write(strip); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		strip = zb.Bytes()
		compression = compressionDeflate
	}

	w.longs(tagImageWidth, uint32(r.Width))
	w.longs(tagImageLength, uint32(r.Height))
	w.shorts(tagBitsPerSample, 32)
	w.shorts(tagCompression, compression)
	w.shorts(tagPhotometric, 1)
	w.shorts(tagSamplesPerPixel, 1)
	w.longs(tagRowsPerStrip, uint32(r.Height))
	w.shorts(tagPlanarConfig, 1)
	w.shorts(tagSampleFormat, sampleFloat)
	w.geo(r)

	return w.write(out, strip)
}

func (w *tiffWriter) geo(r *Raster) {
	gt := r.Transform
	w.doubles(tagModelPixelScale, gt.PixelWidth, -gt.PixelHeight, 0)
	w.doubles(tagModelTiepoint, 0, 0, 0, gt.OriginX, gt.OriginY, 0)

	keys := [][4]uint16{{geoKeyRasterType, 0, 1, 1}}
	if code, ok := r.CRS.EPSG(); ok {
		if r.CRS.IsGeographic() {
			keys = append([][4]uint16{{geoKeyModelType, 0, 1, 2}}, keys...)
			keys = append(keys, [4]uint16{geoKeyGeographic, 0, 1, uint16(code)})
		} else {
			keys = append([][4]uint16{{geoKeyModelType, 0, 1, 1}}, keys...)
			keys = append(keys, [4]uint16{geoKeyProjected, 0, 1, uint16(code)})
		}
	}
	dir := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		dir = append(dir, k[:]...)
	}
	w.shorts(tagGeoKeyDirectory, dir...)

	if !math.IsNaN(r.NoData) {
		w.ascii(tagGDALNoData, strconv.FormatFloat(r.NoData, 'g', -1, 64))
	} else {
		w.ascii(tagGDALNoData, "nan")
	}
}
