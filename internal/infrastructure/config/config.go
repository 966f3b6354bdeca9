package config

import (
	"os"
	"strconv"
)

// Config is the pipeline's environment-derived configuration (spec §6 plus
// the interactive-mode ambient surface: the session-bridge HTTP/websocket
// auth secret and the optional Postgres run index).
type Config struct {
	ImageGenAPIKey string
	Debug          bool
	PackerBin      string
	RunDirRoot     string
	JWTSecret      string
	RunIndexDSN    string
	CallbackURL    string
}

// Load reads configuration from environment variables, falling back to
// sensible defaults the same way the teacher's config loader does.
func Load() *Config {
	return &Config{
		ImageGenAPIKey: getEnv("IMAGEGEN_API_KEY", ""),
		Debug:          getEnvBool("DEBUG", false),
		PackerBin:      getEnv("PACKER_BIN", "texturepacker"),
		RunDirRoot:     getEnv("RUN_DIR_ROOT", "./runs"),
		JWTSecret:      getEnv("SESSION_JWT_SECRET", ""),
		RunIndexDSN:    getEnv("RUN_INDEX_DSN", ""),
		CallbackURL:    getEnv("CALLBACK_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Redacted returns a copy safe to log: the API key is never emitted as-is.
func (c *Config) Redacted() map[string]string {
	key := "[REDACTED]"
	if c.ImageGenAPIKey == "" {
		key = ""
	}
	jwt := "[REDACTED]"
	if c.JWTSecret == "" {
		jwt = ""
	}
	return map[string]string{
		"imagegen_api_key": key,
		"debug":            strconv.FormatBool(c.Debug),
		"packer_bin":       c.PackerBin,
		"run_dir_root":     c.RunDirRoot,
		"session_jwt_secret": jwt,
		"run_index_dsn_set":  strconv.FormatBool(c.RunIndexDSN != ""),
	}
}
