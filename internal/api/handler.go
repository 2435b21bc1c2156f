// Package api exposes the proximity pipeline over HTTP: nearby queries per
// dataset, address suggestions, the location snapshot and the facts proxy.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
	"github.com/Luckywi/EcoLyon-sub001/internal/geocode"
	"github.com/Luckywi/EcoLyon-sub001/internal/location"
	"github.com/Luckywi/EcoLyon-sub001/internal/models"
)

// NearbyLoader is the loader surface the handler depends on.
type NearbyLoader interface {
	LoadAround(ctx context.Context, center geo.Coordinate) ([]*models.POI, error)
}

// AddressResolver is the geocoding surface the handler depends on.
type AddressResolver interface {
	Suggest(ctx context.Context, query string) []geocode.Completion
	Resolve(ctx context.Context, idOrText string) (geo.Coordinate, bool)
}

// LocationSnapshotter reports the current location state.
type LocationSnapshotter interface {
	Snapshot() location.State
}

type Handler struct {
	loaders  map[string]NearbyLoader
	resolver AddressResolver
	provider LocationSnapshotter
	facts    *FactsClient
}

func NewHandler(loaders map[string]NearbyLoader, resolver AddressResolver, provider LocationSnapshotter, facts *FactsClient) *Handler {
	return &Handler{
		loaders:  loaders,
		resolver: resolver,
		provider: provider,
		facts:    facts,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/:dataset/nearby", h.getNearby)
	r.GET("/api/geocode", h.getSuggestions)
	r.GET("/api/geocode/resolve", h.resolveAddress)
	r.GET("/api/location", h.getLocation)
	r.GET("/api/facts", h.getFact)
	r.GET("/health", h.health)
}

func (h *Handler) getNearby(c *gin.Context) {
	loader, ok := h.loaders[c.Param("dataset")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dataset"})
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon query parameters are required"})
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lon out of range"})
		return
	}

	center := geo.Coordinate{Latitude: lat, Longitude: lon}
	items, err := loader.LoadAround(c.Request.Context(), center)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load dataset"})
		return
	}

	// Optional tighter limit; the dataset's own cap still applies upstream.
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim < len(items) {
			items = items[:lim]
		}
	}

	fc := toGeoJSON(items, center)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getSuggestions(c *gin.Context) {
	query := c.Query("q")
	suggestions := h.resolver.Suggest(c.Request.Context(), query)
	if suggestions == nil {
		suggestions = []geocode.Completion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *Handler) resolveAddress(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q query parameter is required"})
		return
	}

	coord, ok := h.resolver.Resolve(c.Request.Context(), query)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no match"})
		return
	}
	c.JSON(http.StatusOK, coord)
}

func (h *Handler) getLocation(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "location tracking disabled"})
		return
	}
	c.JSON(http.StatusOK, h.provider.Snapshot())
}

func (h *Handler) getFact(c *gin.Context) {
	if h.facts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "facts endpoint disabled"})
		return
	}
	fact, err := h.facts.Random(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch fact"})
		return
	}
	c.JSON(http.StatusOK, fact)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
