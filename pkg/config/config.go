// Package config loads the service's runtime configuration from the
// environment, matching the defaults documented for the HTTP surface.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Provider selects which Embedding Provider (C4) variant the service wires
// in at startup.
type Provider string

const (
	ProviderRemote Provider = "remote"
	ProviderLocal  Provider = "local"
)

// Config holds every environment-derived setting the service needs.
type Config struct {
	Host            string
	HNSWPath        string
	SQLitePath      string
	Dimensions      int
	InsertThreshold float32
	EmbedProvider   Provider
	OpenAIAPIKey    string
	EmbedModel      string
	EmbedBaseURL    string
	ONNXLibraryPath string
	MaxBodyBytes    int64
}

// DefaultConfig returns the configuration the service uses when no
// environment variable overrides a setting.
func DefaultConfig() Config {
	return Config{
		Host:            "[::0]:8080",
		HNSWPath:        "data/hnsw.json",
		SQLitePath:      "data/vectors.db",
		Dimensions:      1536,
		InsertThreshold: 0.002,
		EmbedProvider:   ProviderRemote,
		EmbedModel:      "text-embedding-ada-002",
		MaxBodyBytes:    2 * 1024 * 1024,
	}
}

// Load reads Config from the environment, falling back to DefaultConfig for
// anything unset. It fails fast if a numeric override does not parse.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("HNSW_PATH"); v != "" {
		cfg.HNSWPath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	if v := os.Getenv("DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: invalid DIMENSIONS %q: %w", v, err)
		}
		cfg.Dimensions = n
	}
	if v := os.Getenv("INSERT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid INSERT_THRESHOLD %q: %w", v, err)
		}
		cfg.InsertThreshold = float32(f)
	}
	if v := os.Getenv("EMBED_PROVIDER"); v != "" {
		p := Provider(v)
		if p != ProviderRemote && p != ProviderLocal {
			return Config{}, fmt.Errorf("config: invalid EMBED_PROVIDER %q, want %q or %q", v, ProviderRemote, ProviderLocal)
		}
		cfg.EmbedProvider = p
	}
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.EmbedModel = v
	}
	cfg.EmbedBaseURL = os.Getenv("EMBED_BASE_URL")
	cfg.ONNXLibraryPath = os.Getenv("ONNX_LIBRARY_PATH")
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: invalid MAX_BODY_BYTES %q: %w", v, err)
		}
		cfg.MaxBodyBytes = n
	}

	if cfg.EmbedProvider == ProviderRemote && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("config: OPENAI_API_KEY is required when EMBED_PROVIDER=remote")
	}
	if cfg.EmbedProvider == ProviderLocal && cfg.ONNXLibraryPath == "" {
		return Config{}, fmt.Errorf("config: ONNX_LIBRARY_PATH is required when EMBED_PROVIDER=local")
	}

	return cfg, nil
}
