// Package config loads and validates application configuration from environment variables.
// All three binaries share it; the batch CLI uses these values as flag defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values for the scorer binaries.
// Values are populated by Load from environment variables.
type Config struct {
	// ModelPath is the fitted model artifact (YAML). Required.
	ModelPath string

	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// DatabaseURL is the Postgres connection string. Optional; enables run
	// history and the postgres:// sink.
	DatabaseURL string

	// PredictionsSQLite is a SQLite file written by the batch CLI's sqlite://
	// sink. Without DATABASE_URL the API serves GET /predictions from it.
	PredictionsSQLite string

	// RedisURL enables the stream scorer's Redis mirror. Optional.
	RedisURL string

	// MQTT broker and topics used by the stream scorer.
	MQTTURL         string
	MQTTInputTopic  string
	MQTTOutputTopic string

	// Admissible-duration filter policy, in minutes.
	FilterBeforeScoring bool
	MinDuration         float64
	MaxDuration         float64

	// StrictCategories makes unknown location pairs an error instead of an
	// all-zero one-hot row.
	StrictCategories bool

	// InputPattern and OutputPattern are batch locations with {year} and
	// {month} placeholders.
	InputPattern  string
	OutputPattern string

	// TripLayout is the input column layout: fhv or yellow.
	TripLayout string

	// S3PathStyle forces path-style S3 addressing (MinIO, LocalStack).
	S3PathStyle bool

	// MaxBodyBytes caps HTTP request bodies.
	MaxBodyBytes int64
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set and any
// values that do not parse.
func Load() (Config, error) {
	cfg, err := LoadDefaults()
	if err != nil {
		return Config{}, err
	}
	if cfg.ModelPath == "" {
		return Config{}, fmt.Errorf("required environment variables not set: MODEL_PATH")
	}
	return cfg, nil
}

// LoadDefaults is Load without the required-variable check. The batch CLI
// uses it to seed flag defaults, since --model may supply MODEL_PATH.
func LoadDefaults() (Config, error) {
	cfg := Config{
		ModelPath:         os.Getenv("MODEL_PATH"),
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		PredictionsSQLite: os.Getenv("PREDICTIONS_SQLITE"),
		MQTTURL:           getEnv("MQTT_URL", "tcp://localhost:1883"),
		MQTTInputTopic:    getEnv("MQTT_INPUT_TOPIC", "rides/events"),
		MQTTOutputTopic:   getEnv("MQTT_OUTPUT_TOPIC", "rides/predictions"),
		InputPattern:      getEnv("INPUT_PATTERN", "https://d37ci6vzurychx.cloudfront.net/trip-data/fhv_tripdata_{year}-{month}.parquet"),
		OutputPattern:     getEnv("OUTPUT_PATTERN", "output/fhv/{year}-{month}.parquet"),
		TripLayout:        strings.ToLower(getEnv("TRIP_LAYOUT", "fhv")),
	}

	var invalid []string

	parseBool := func(key string, fallback bool) bool {
		v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
		if err != nil {
			invalid = append(invalid, key)
			return fallback
		}
		return v
	}
	parseFloat := func(key string, fallback float64) float64 {
		v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(fallback, 'g', -1, 64)), 64)
		if err != nil {
			invalid = append(invalid, key)
			return fallback
		}
		return v
	}

	cfg.FilterBeforeScoring = parseBool("FILTER_BEFORE_SCORING", true)
	cfg.StrictCategories = parseBool("STRICT_CATEGORIES", false)
	cfg.S3PathStyle = parseBool("S3_PATH_STYLE", false)
	cfg.MinDuration = parseFloat("MIN_DURATION_MIN", 1)
	cfg.MaxDuration = parseFloat("MAX_DURATION_MIN", 60)

	maxBody, err := strconv.ParseInt(getEnv("MAX_BODY_BYTES", "1048576"), 10, 64)
	if err != nil || maxBody <= 0 {
		invalid = append(invalid, "MAX_BODY_BYTES")
	}
	cfg.MaxBodyBytes = maxBody

	if cfg.MinDuration > cfg.MaxDuration {
		invalid = append(invalid, "MIN_DURATION_MIN > MAX_DURATION_MIN")
	}
	if cfg.TripLayout != "fhv" && cfg.TripLayout != "yellow" {
		invalid = append(invalid, "TRIP_LAYOUT")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
