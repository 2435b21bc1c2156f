package models

import "github.com/Luckywi/EcoLyon-sub001/internal/geo"

// POI is one located item from an open-data dataset: a toilet, fountain,
// glass silo, bin or hiking-loop anchor, with its free-form attributes.
type POI struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Address    string         `json:"address,omitempty"`
	Commune    string         `json:"commune,omitempty"`
	Category   string         `json:"category"`
	Authority  string         `json:"authority,omitempty"` // gestionnaire
	Accessible bool           `json:"accessible"`
	Location   geo.Coordinate `json:"location"`
}

// Coordinates returns the item's position; convenience for callers that only
// care about geometry.
func (p *POI) Coordinates() geo.Coordinate {
	return p.Location
}
