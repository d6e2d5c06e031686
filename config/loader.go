package config

// loader.go - configuration loading from files and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags            (handled by cmd/root.go)
//   2. Environment variables (LoadFromEnv)
//   3. .env file             (LoadDotEnv, never overrides real env vars)
//   4. YAML config file      (LoadFile)
//   5. Defaults              (defaults.go)

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by LoadFile when the file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// EnvConfigPath names the variable that points at a YAML config file.
const EnvConfigPath = "TELFS_CONFIG"

// LoadFile overlays the YAML document at path onto cfg.  Keys missing
// from the document keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment.  Missing files are not an error; variables that are
// already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TELFS_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TELFS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := envInt("TELFS_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envInt("TELFS_BACKLOG"); v > 0 {
		cfg.Backlog = v
	}
	if v := envInt("TELFS_BIND_RETRIES"); v > 0 {
		cfg.BindRetries = v
	}
	if v := os.Getenv("TELFS_ROOT"); v != "" {
		cfg.Root = v
	}
	if envBool("TELFS_READ_ONLY") {
		cfg.ReadOnly = true
	}
	if v := envInt("TELFS_MAX_FILE_SIZE"); v > 0 {
		cfg.MaxFileSize = int64(v)
	}
	if v := os.Getenv("TELFS_NICK"); v != "" {
		cfg.Nickname = v
	}
	if v := envInt("TELFS_READ_BUFFER"); v > 0 {
		cfg.ReadBufferSize = v
	}
	if v := envInt("TELFS_MAX_LINE"); v > 0 {
		cfg.MaxLineLength = v
	}
	if v, ok := os.LookupEnv("TELFS_VERBOSE"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Verbose = n
		}
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
