package api

import (
	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
	"github.com/Luckywi/EcoLyon-sub001/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders a nearby-POI result as a feature collection, annotating
// each feature with its distance from the query center.
func toGeoJSON(items []*models.POI, center geo.Coordinate) FeatureCollection {
	features := make([]Feature, 0, len(items))

	for _, p := range items {
		f := Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{p.Location.Longitude, p.Location.Latitude},
			},
			Properties: map[string]any{
				"id":         p.ID,
				"name":       p.Name,
				"category":   p.Category,
				"address":    p.Address,
				"commune":    p.Commune,
				"authority":  p.Authority,
				"accessible": p.Accessible,
				"distance_m": geo.Distance(p.Location, center),
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
