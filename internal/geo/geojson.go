// Package geo handles line geometries, bounds and GeoJSON output structures.
package geo

// GeoJSONFeatureCollection represents a collection of geographic features.
// It follows the standard GeoJSON structure.
type GeoJSONFeatureCollection struct {
	Type     string           `json:"type" yaml:"type"`
	Features []GeoJSONFeature `json:"features" yaml:"features"`
}

// GeoJSONFeature represents a single geographic feature with geometry and properties.
type GeoJSONFeature struct {
	Properties map[string]any  `json:"properties" yaml:"properties"`
	Type       string          `json:"type" yaml:"type"`
	Geometry   GeoJSONGeometry `json:"geometry" yaml:"geometry"`
}

// GeoJSONGeometry represents a point geometry of a feature.
type GeoJSONGeometry struct {
	Type        string    `json:"type" yaml:"type"`
	Coordinates []float64 `json:"coordinates" yaml:"coordinates"` // [X, Y]
}

// NewFeatureCollection returns an empty collection ready for appending.
func NewFeatureCollection(capacity int) *GeoJSONFeatureCollection {
	return &GeoJSONFeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]GeoJSONFeature, 0, capacity),
	}
}

// AddPoint appends a point feature with the given properties.
func (fc *GeoJSONFeatureCollection) AddPoint(x, y float64, props map[string]any) {
	fc.Features = append(fc.Features, GeoJSONFeature{
		Type:       "Feature",
		Properties: props,
		Geometry: GeoJSONGeometry{
			Type:        "Point",
			Coordinates: []float64{x, y},
		},
	})
}
