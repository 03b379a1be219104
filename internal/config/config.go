// Package config assembles runtime settings from defaults, an optional YAML
// file pointed at by CONFIG_FILE, and environment variables, in that order of
// precedence (environment wins).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Byeongcheol-Kim/graphchat/internal/platform/envutil"
)

type Config struct {
	APIHost     string   `yaml:"api_host"`
	APIPort     int      `yaml:"api_port"`
	CORSOrigins []string `yaml:"cors_origins"`
	JWTSecret   string   `yaml:"jwt_secret"`
	Debug       bool     `yaml:"debug"`
}

func Default() Config {
	return Config{
		APIHost:     "0.0.0.0",
		APIPort:     8432,
		CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		JWTSecret:   "dev-secret-change-me",
		Debug:       false,
	}
}

func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.APIHost = envutil.Str("API_HOST", cfg.APIHost)
	cfg.APIPort = envutil.Int("API_PORT", cfg.APIPort)
	cfg.JWTSecret = envutil.Str("JWT_SECRET", cfg.JWTSecret)
	cfg.Debug = envutil.Bool("DEBUG", cfg.Debug)
	if origins := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); origins != "" {
		cfg.CORSOrigins = parseOrigins(origins)
	}

	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

func (c Config) GinMode() string {
	if c.Debug {
		return "debug"
	}
	return "release"
}

// parseOrigins accepts either a JSON array or a comma-separated list.
func parseOrigins(raw string) []string {
	if strings.HasPrefix(raw, "[") {
		var parsed []string
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return parsed
		}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
