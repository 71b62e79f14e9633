// Package crs parses coordinate reference systems and reprojects coordinates.
package crs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCRS is returned for reference systems without a known definition.
var ErrUnknownCRS = errors.New("unknown CRS")

// CRS identifies a coordinate reference system, either as an EPSG code
// ("EPSG:4326") or as a raw proj4 definition.
type CRS string

// Common reference systems.
const (
	WGS84   CRS = "EPSG:4326"
	NAD83   CRS = "EPSG:4269"
	WebMerc CRS = "EPSG:3857"
	Albers  CRS = "EPSG:5070" // CONUS Albers Equal Area, NAD83
)

var definitions = map[int]string{
	4326: "+proj=longlat +datum=WGS84 +no_defs",
	4269: "+proj=longlat +ellps=GRS80 +towgs84=0,0,0 +no_defs",
	3857: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	5070: "+proj=aea +lat_0=23 +lon_0=-96 +lat_1=29.5 +lat_2=45.5 +x_0=0 +y_0=0 +ellps=GRS80 +towgs84=0,0,0 +units=m +no_defs",
}

func init() {
	for zone := 1; zone <= 60; zone++ {
		definitions[32600+zone] = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone)
		if zone <= 23 {
			definitions[26900+zone] = fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80 +towgs84=0,0,0 +units=m +no_defs", zone)
		}
	}
}

// Parse normalizes s into a CRS.
// Accepted forms: "EPSG:4326", "epsg:4326", "4326", "urn:ogc:def:crs:EPSG::4326"
// and proj4 strings starting with "+proj=".
func Parse(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrUnknownCRS)
	}
	if strings.HasPrefix(s, "+proj=") {
		return CRS(s), nil
	}

	code := s
	if i := strings.LastIndex(code, ":"); i >= 0 {
		code = code[i+1:]
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, s)
	}
	if _, ok := definitions[n]; !ok {
		return "", fmt.Errorf("%w: EPSG:%d", ErrUnknownCRS, n)
	}

	return FromEPSG(n), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) CRS {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// FromEPSG returns the CRS for an EPSG code.
func FromEPSG(code int) CRS {
	return CRS("EPSG:" + strconv.Itoa(code))
}

// EPSG returns the numeric code, if c is an EPSG reference.
func (c CRS) EPSG() (int, bool) {
	rest, ok := strings.CutPrefix(string(c), "EPSG:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// Proj4 returns the proj4 definition of c.
func (c CRS) Proj4() (string, error) {
	if strings.HasPrefix(string(c), "+proj=") {
		return string(c), nil
	}
	code, ok := c.EPSG()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, string(c))
	}
	def, ok := definitions[code]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCRS, c)
	}
	return def, nil
}

// IsGeographic reports whether coordinates are longitude/latitude degrees.
func (c CRS) IsGeographic() bool {
	def, err := c.Proj4()
	if err != nil {
		return false
	}
	return strings.Contains(def, "+proj=longlat") || strings.Contains(def, "+proj=latlong")
}

// Equal reports whether both values refer to the same definition.
func (c CRS) Equal(o CRS) bool {
	if c == o {
		return true
	}
	a, errA := c.Proj4()
	b, errB := o.Proj4()
	return errA == nil && errB == nil && a == b
}

func (c CRS) String() string {
	return string(c)
}
