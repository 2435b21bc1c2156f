package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Luckywi/EcoLyon-sub001/internal/geo"
)

type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	Location LocationConfig
	Geocode  GeocodeConfig
	Facts    FactsConfig
	Refresh  RefreshConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
	RPS  int
}

type CacheConfig struct {
	ZoneTTL       time.Duration
	ZoneTolerance float64 // meters
	GlobalTTL     time.Duration
}

type LocationConfig struct {
	Enabled           bool
	FallbackLatitude  float64
	FallbackLongitude float64
	FallbackWait      time.Duration
	MovementThreshold float64 // meters
	LiveFixTarget     int
	StopGrace         time.Duration
}

type GeocodeConfig struct {
	Endpoint string
}

type FactsConfig struct {
	URL   string
	Token string
}

type RefreshConfig struct {
	Enabled     bool
	Interval    time.Duration
	WorkerCount int
	BufferSize  int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
			RPS:  getEnvInt("SERVER_RPS", 10),
		},
		Cache: CacheConfig{
			ZoneTTL:       getEnvDuration("CACHE_ZONE_TTL", time.Hour),
			ZoneTolerance: getEnvFloat("CACHE_ZONE_TOLERANCE_M", 200),
			GlobalTTL:     getEnvDuration("CACHE_GLOBAL_TTL", 24*time.Hour),
		},
		Location: LocationConfig{
			Enabled: getEnvBool("LOCATION_ENABLED", true),
			// Place Bellecour
			FallbackLatitude:  getEnvFloat("LOCATION_FALLBACK_LAT", 45.7578),
			FallbackLongitude: getEnvFloat("LOCATION_FALLBACK_LON", 4.8320),
			FallbackWait:      getEnvDuration("LOCATION_FALLBACK_WAIT", 5*time.Second),
			MovementThreshold: getEnvFloat("LOCATION_MOVEMENT_THRESHOLD_M", 50),
			LiveFixTarget:     getEnvInt("LOCATION_LIVE_FIX_TARGET", 3),
			StopGrace:         getEnvDuration("LOCATION_STOP_GRACE", time.Second),
		},
		Geocode: GeocodeConfig{
			Endpoint: getEnv("GEOCODE_ENDPOINT", ""),
		},
		Facts: FactsConfig{
			URL:   getEnv("FACTS_URL", "https://api.ecolyon.fr/facts/random"),
			Token: getEnv("FACTS_TOKEN", ""),
		},
		Refresh: RefreshConfig{
			Enabled:     getEnvBool("REFRESH_ENABLED", true),
			Interval:    getEnvDuration("REFRESH_INTERVAL", 30*time.Minute),
			WorkerCount: getEnvInt("REFRESH_WORKER_COUNT", 2),
			BufferSize:  getEnvInt("REFRESH_BUFFER_SIZE", 16),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatasetURL returns the endpoint override for a dataset, or "" to keep the
// built-in open-data URL. Example: DATASET_TOILETTES_URL.
func DatasetURL(datasetID string) string {
	return os.Getenv("DATASET_" + toEnvKey(datasetID) + "_URL")
}

func (c *Config) Fallback() geo.Coordinate {
	return geo.Coordinate{
		Latitude:  c.Location.FallbackLatitude,
		Longitude: c.Location.FallbackLongitude,
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Cache.ZoneTTL <= 0 || c.Cache.GlobalTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.ZoneTolerance <= 0 {
		return fmt.Errorf("zone tolerance must be positive")
	}

	if lat := c.Location.FallbackLatitude; lat < -90 || lat > 90 {
		return fmt.Errorf("invalid fallback latitude: %f", lat)
	}
	if lon := c.Location.FallbackLongitude; lon < -180 || lon > 180 {
		return fmt.Errorf("invalid fallback longitude: %f", lon)
	}

	if c.Refresh.Interval < time.Minute {
		return fmt.Errorf("refresh interval must be at least 1 minute")
	}

	return nil
}

func toEnvKey(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
