// Package geocode turns free-text address queries into coordinate
// suggestions, filtered to the Lyon area. Failures never propagate to the
// caller: they are logged and surface as empty results.
package geocode

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
)

var ErrGeocodingFailed = errors.New("geocoding failed")

const (
	defaultMinQueryLen    = 3
	defaultMaxSuggestions = 6
)

// Completion is one address candidate: display strings plus the resolved
// coordinate. ID is an opaque handle usable with Resolve.
type Completion struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle"`
	Location geo.Coordinate `json:"location"`
}

// Completer is the address-completion collaborator.
type Completer interface {
	Search(ctx context.Context, query string) ([]Completion, error)
}

// rhonePostcode matches the department's postal codes (69001, 69100, ...).
var rhonePostcode = regexp.MustCompile(`\b69\d{3}\b`)

// Locality heuristics: keep metropolitan communes, drop the frequent
// same-name matches elsewhere in France. Not a hard contract.
var allowedLocalities = []string{
	"lyon", "villeurbanne", "caluire", "bron", "venissieux", "vénissieux",
	"oullins", "tassin", "écully", "ecully", "saint-fons", "givors",
	"rillieux", "meyzieu", "vaulx-en-velin", "décines", "decines", "rhône",
	"rhone",
}

var deniedLocalities = []string{
	"paris", "marseille", "toulouse", "bordeaux", "lille", "nantes",
	"strasbourg", "montpellier", "rennes", "nice",
}

// Resolver bounds, filters and caches suggestions from a Completer.
type Resolver struct {
	completer      Completer
	minQueryLen    int
	maxSuggestions int

	mu   sync.Mutex
	byID map[string]Completion // last returned suggestions, for Resolve by handle
}

func NewResolver(completer Completer) *Resolver {
	return &Resolver{
		completer:      completer,
		minQueryLen:    defaultMinQueryLen,
		maxSuggestions: defaultMaxSuggestions,
		byID:           make(map[string]Completion),
	}
}

// Suggest returns at most six Lyon-area candidates for query. Short queries
// and completer failures yield an empty slice.
func (r *Resolver) Suggest(ctx context.Context, query string) []Completion {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < r.minQueryLen {
		return nil
	}

	results, err := r.completer.Search(ctx, query)
	if err != nil {
		slog.Warn("address search failed", "query", query, "error", err)
		return nil
	}

	kept := make([]Completion, 0, r.maxSuggestions)
	for _, c := range results {
		if !keepSuggestion(c) {
			continue
		}
		kept = append(kept, c)
		if len(kept) == r.maxSuggestions {
			break
		}
	}

	r.mu.Lock()
	r.byID = make(map[string]Completion, len(kept))
	for _, c := range kept {
		r.byID[c.ID] = c
	}
	r.mu.Unlock()

	return kept
}

// Resolve turns a suggestion handle, or failing that a free-text query, into
// a coordinate. Returns false on any failure; errors never propagate.
func (r *Resolver) Resolve(ctx context.Context, idOrText string) (geo.Coordinate, bool) {
	r.mu.Lock()
	c, ok := r.byID[idOrText]
	r.mu.Unlock()
	if ok {
		return c.Location, true
	}

	results, err := r.completer.Search(ctx, idOrText)
	if err != nil {
		slog.Warn("geocoding failed", "query", idOrText, "error", err)
		return geo.Coordinate{}, false
	}
	for _, c := range results {
		if keepSuggestion(c) {
			return c.Location, true
		}
	}
	return geo.Coordinate{}, false
}

// keepSuggestion applies the regional bias: a Rhône postal code always wins,
// denied big-city names always lose, known local names win, anything else is
// dropped.
func keepSuggestion(c Completion) bool {
	text := strings.ToLower(c.Title + " " + c.Subtitle)

	if rhonePostcode.MatchString(text) {
		return true
	}
	for _, deny := range deniedLocalities {
		if strings.Contains(text, deny) {
			return false
		}
	}
	for _, allow := range allowedLocalities {
		if strings.Contains(text, allow) {
			return true
		}
	}
	return false
}
