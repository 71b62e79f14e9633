package elevation

import (
	"slices"
	"strings"
)

const layerPrefix = "3DEPElevation:"

// Layers lists the products served by the 3DEP elevation WMS.
var Layers = []string{
	"DEM",
	"Hillshade Gray",
	"Aspect Degrees",
	"Aspect Map",
	"GreyHillshade_elevationFill",
	"Hillshade Multidirectional",
	"Slope Map",
	"Slope Degrees",
	"Hillshade Elevation Tinted",
	"Height Ellipsoidal",
	"Contour 25",
	"Contour Smoothed 25",
}

// ValidateLayers checks every name against Layers.
func ValidateLayers(layers []string) error {
	if len(layers) == 0 {
		return &InputValueError{Name: "layers", Valid: Layers}
	}
	for _, l := range layers {
		if !slices.Contains(Layers, l) {
			return &InputValueError{Name: "layers", Given: l, Valid: Layers}
		}
	}
	return nil
}

// layerParam returns the WMS layer name. The DEM product is named None.
func layerParam(layer string) string {
	if layer == "DEM" {
		return layerPrefix + "None"
	}
	return layerPrefix + layer
}

// LayerName is the key of a layer in GetMap results: "elevation" for the
// DEM and the snake_case product name otherwise.
func LayerName(layer string) string {
	if layer == "DEM" {
		return "elevation"
	}
	return strings.ReplaceAll(strings.ToLower(layer), " ", "_")
}

// layerAttrs describes the values of a layer.
func layerAttrs(layer string) map[string]string {
	switch layer {
	case "DEM":
		return map[string]string{"units": "meters", "vertical_datum": "NAVD88"}
	case "Height Ellipsoidal":
		return map[string]string{"units": "meters", "vertical_datum": "ellipsoid"}
	case "Slope Degrees", "Aspect Degrees":
		return map[string]string{"units": "degrees"}
	}
	return map[string]string{}
}
