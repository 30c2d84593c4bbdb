package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "GATEKEEPER_"

// parseEnv overlays GATEKEEPER_* variables. Empty variables are ignored.
func parseEnv(config *Config) error {
	setString(&config.HTTPAddr, getEnv("HTTP_ADDR"))
	setString(&config.APIPrefix, getEnv("API_PREFIX"))
	setString(&config.DatabaseDSN, getEnv("DATABASE_DSN"))
	setString(&config.AccessTokenSecret, getEnv("ACCESS_TOKEN_SECRET"))
	setString(&config.RefreshTokenSecret, getEnv("REFRESH_TOKEN_SECRET"))
	setString(&config.LogLevel, getEnv("LOG_LEVEL"))
	setString(&config.Env, getEnv("ENV"))

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration},
		{"REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration},
		{"AUDIT_WRITE_TIMEOUT", &config.AuditWriteTimeout},
		{"READ_TIMEOUT", &config.ReadTimeout},
		{"WRITE_TIMEOUT", &config.WriteTimeout},
		{"SHUTDOWN_TIMEOUT", &config.ShutdownTimeout},
	}
	for _, d := range durations {
		v := getEnv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	if v := getEnv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBCRYPT_COST: %w", envPrefix, err)
		}
		config.BcryptCost = cost
	}

	if v := getEnv("AUDIT_EXCLUDE_PREFIXES"); v != "" {
		config.AuditExcludePrefixes = splitList(v)
	}

	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
