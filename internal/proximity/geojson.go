package proximity

import "encoding/json"

// Wire types for the open-data feature collections. Geometry coordinates stay
// raw because point features carry [lon, lat] while line and loop features
// carry nested arrays of such pairs.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// anchorPoint returns the feature's anchor in GeoJSON order [lon, lat]: the
// point itself for point geometries, the first vertex for line and loop
// geometries. Returns false for malformed or too-short coordinate arrays.
func (g geometry) anchorPoint() ([]float64, bool) {
	return firstPoint(g.Coordinates, 0)
}

func firstPoint(raw json.RawMessage, depth int) ([]float64, bool) {
	if depth > 4 || len(raw) == 0 {
		return nil, false
	}

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) < 2 {
			return nil, false
		}
		return flat, true
	}

	var nested []json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil || len(nested) == 0 {
		return nil, false
	}
	return firstPoint(nested[0], depth+1)
}
