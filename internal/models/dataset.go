package models

import (
	"fmt"
	"strings"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
)

// ParseFunc builds a POI from one decoded GeoJSON feature. coords is the
// feature's anchor point in GeoJSON order [longitude, latitude]; props holds
// the feature's raw properties. Returning an error discards the feature.
type ParseFunc func(coords []float64, props map[string]any) (*POI, error)

// Dataset describes one category of open-data points: where to fetch it, how
// far a "nearby" query reaches, how many items a result may carry, and how
// to parse one feature.
type Dataset struct {
	ID           string
	Name         string
	APIURL       string
	SearchRadius float64 // meters
	MaxItems     int
	Parse        ParseFunc
}

const grandLyonWFS = "https://data.grandlyon.com/geoserver/metropole-de-lyon/ows?SERVICE=WFS&VERSION=2.0.0&request=GetFeature&outputFormat=application/json&SRSNAME=EPSG:4171&typename="

// DefaultDatasets returns the Lyon open-data dataset registry, keyed by
// dataset ID.
func DefaultDatasets() map[string]Dataset {
	datasets := []Dataset{
		{
			ID:           "toilettes",
			Name:         "Toilettes publiques",
			APIURL:       grandLyonWFS + "metropole-de-lyon:adr_voie_lieu.adrtoilettepublique_latest",
			SearchRadius: 1500,
			MaxItems:     50,
			Parse:        parseToilette,
		},
		{
			ID:           "fontaines",
			Name:         "Fontaines d'eau potable",
			APIURL:       grandLyonWFS + "metropole-de-lyon:adr_voie_lieu.adrbornefontaine_latest",
			SearchRadius: 1200,
			MaxItems:     50,
			Parse:        parseFontaine,
		},
		{
			ID:           "silos",
			Name:         "Silos à verre",
			APIURL:       grandLyonWFS + "metropole-de-lyon:gic_collecte.gicsiloverre_latest",
			SearchRadius: 1000,
			MaxItems:     60,
			Parse:        parseSilo,
		},
		{
			ID:           "corbeilles",
			Name:         "Corbeilles de rue",
			APIURL:       grandLyonWFS + "metropole-de-lyon:gin_nettoiement.gincorbeille_latest",
			SearchRadius: 800,
			MaxItems:     80,
			Parse:        parseCorbeille,
		},
		{
			ID:           "boucles",
			Name:         "Boucles de randonnée",
			APIURL:       grandLyonWFS + "metropole-de-lyon:evg_esp_veg.evgbouclerandonnee_latest",
			SearchRadius: 10000,
			MaxItems:     20,
			Parse:        parseBoucle,
		},
	}

	byID := make(map[string]Dataset, len(datasets))
	for _, d := range datasets {
		byID[d.ID] = d
	}
	return byID
}

func parseToilette(coords []float64, props map[string]any) (*POI, error) {
	p, err := basePOI("toilette", coords, props)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = "Toilettes publiques"
	}
	p.Accessible = boolProp(props, "acces_pmr", "accessibilite_pmr")
	return p, nil
}

func parseFontaine(coords []float64, props map[string]any) (*POI, error) {
	p, err := basePOI("fontaine", coords, props)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = "Fontaine d'eau potable"
	}
	return p, nil
}

func parseSilo(coords []float64, props map[string]any) (*POI, error) {
	p, err := basePOI("silo", coords, props)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = "Silo à verre"
	}
	return p, nil
}

func parseCorbeille(coords []float64, props map[string]any) (*POI, error) {
	p, err := basePOI("corbeille", coords, props)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = "Corbeille de rue"
	}
	return p, nil
}

func parseBoucle(coords []float64, props map[string]any) (*POI, error) {
	// Loops are line features; coords is the first vertex of the trace.
	p, err := basePOI("boucle", coords, props)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = stringProp(props, "nom_boucle", "libelle")
	}
	return p, nil
}

// basePOI extracts the fields shared by every dataset. Features with fewer
// than two coordinate components are rejected here.
func basePOI(category string, coords []float64, props map[string]any) (*POI, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("feature has %d coordinate components, need at least 2", len(coords))
	}

	return &POI{
		ID:        stringProp(props, "gid", "identifiant", "id"),
		Name:      stringProp(props, "nom", "name", "libelle"),
		Address:   stringProp(props, "adresse", "voie", "address"),
		Commune:   stringProp(props, "commune", "insee"),
		Category:  category,
		Authority: stringProp(props, "gestionnaire", "producteur"),
		Location: geo.Coordinate{
			Latitude:  coords[1],
			Longitude: coords[0],
		},
	}, nil
}

func stringProp(props map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func boolProp(props map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := props[k].(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(v) {
			case "oui", "true", "1", "yes":
				return true
			}
		case float64:
			return v != 0
		}
	}
	return false
}
