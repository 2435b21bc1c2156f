package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
)

const defaultBANEndpoint = "https://api-adresse.data.gouv.fr/search/"

// BANClient queries the Base Adresse Nationale, the French open address API.
// It implements Completer.
type BANClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewBANClient(endpoint string) *BANClient {
	if endpoint == "" {
		endpoint = defaultBANEndpoint
	}
	return &BANClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// BAN responses are GeoJSON feature collections of address candidates.
type banResponse struct {
	Features []banFeature `json:"features"`
}

type banFeature struct {
	Geometry   banGeometry   `json:"geometry"`
	Properties banProperties `json:"properties"`
}

type banGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

type banProperties struct {
	Label    string `json:"label"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
	Context  string `json:"context"`
}

// Search returns address candidates for a free-text query, biased toward the
// Lyon area.
func (c *BANClient) Search(ctx context.Context, query string) ([]Completion, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", "10")
	q.Set("lat", "45.7578")
	q.Set("lon", "4.8320")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGeocodingFailed, resp.StatusCode)
	}

	var data banResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}

	completions := make([]Completion, 0, len(data.Features))
	for _, f := range data.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		subtitle := f.Properties.Postcode
		if f.Properties.City != "" {
			subtitle = f.Properties.Postcode + " " + f.Properties.City
		}
		completions = append(completions, Completion{
			ID:       uuid.NewString(),
			Title:    f.Properties.Label,
			Subtitle: subtitle,
			Location: geo.Coordinate{
				Latitude:  f.Geometry.Coordinates[1],
				Longitude: f.Geometry.Coordinates[0],
			},
		})
	}
	return completions, nil
}
