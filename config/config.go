// Package config defines the runtime configuration for telfs and the
// layers it is loaded from.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"telfs/internal/errors"
)

// Config holds every tuneable for a telfs server.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	Backlog     int    `yaml:"backlog"`
	BindRetries int    `yaml:"bind_retries"`

	// ── Filesystem ───────────────────────────────────────────────────
	Root        string `yaml:"root"`
	ReadOnly    bool   `yaml:"read_only"`
	MaxFileSize int64  `yaml:"max_file_size"`

	// ── Sessions ─────────────────────────────────────────────────────
	Nickname       string `yaml:"nickname"`
	ReadBufferSize int    `yaml:"read_buffer_size"`
	MaxLineLength  int    `yaml:"max_line"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int `yaml:"verbose"`
}

// ListenAddr returns "address:port".
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// AbsRoot returns the root directory as an absolute path.
func (c *Config) AbsRoot() (string, error) {
	return filepath.Abs(c.Root)
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &errors.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 0-65535",
			Hint:    fmt.Sprintf("the default is %d", DefaultPort),
		}
	}
	if c.Address != "" && net.ParseIP(c.Address) == nil {
		return &errors.ConfigError{
			Field:   "address",
			Value:   c.Address,
			Message: "must be a numeric IP address",
			Hint:    "use 0.0.0.0 for all interfaces or 127.0.0.1 for loopback",
		}
	}
	if strings.TrimSpace(c.Root) == "" {
		return &errors.ConfigError{
			Field:   "root",
			Message: "server root is required",
			Hint:    fmt.Sprintf("pass --root %s", DefaultRoot),
		}
	}
	if c.Nickname == "" || strings.ContainsAny(c.Nickname, " \t\r\n") {
		return &errors.ConfigError{
			Field:   "nick",
			Value:   c.Nickname,
			Message: "nickname must be a single non-empty word",
		}
	}
	if c.ReadBufferSize < 1 {
		return &errors.ConfigError{Field: "read-buffer", Value: c.ReadBufferSize, Message: "must be positive"}
	}
	if c.MaxLineLength < 1 {
		return &errors.ConfigError{Field: "max-line", Value: c.MaxLineLength, Message: "must be positive"}
	}
	if c.MaxFileSize < 1 {
		return &errors.ConfigError{Field: "max-file-size", Value: c.MaxFileSize, Message: "must be positive"}
	}
	if c.Backlog < 1 {
		return &errors.ConfigError{
			Field:   "backlog",
			Value:   c.Backlog,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %d", DefaultBacklog),
		}
	}
	if c.BindRetries < 1 {
		return &errors.ConfigError{Field: "bind-retries", Value: c.BindRetries, Message: "must be at least 1"}
	}
	return nil
}

// String renders the effective configuration, one field per line.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "listen:         %s\n", c.ListenAddr())
	fmt.Fprintf(&b, "root:           %s\n", c.Root)
	fmt.Fprintf(&b, "read-only:      %t\n", c.ReadOnly)
	fmt.Fprintf(&b, "nickname:       %s\n", c.Nickname)
	fmt.Fprintf(&b, "max-line:       %d\n", c.MaxLineLength)
	fmt.Fprintf(&b, "max-file-size:  %d\n", c.MaxFileSize)
	fmt.Fprintf(&b, "read-buffer:    %d\n", c.ReadBufferSize)
	fmt.Fprintf(&b, "backlog:        %d\n", c.Backlog)
	fmt.Fprintf(&b, "bind-retries:   %d\n", c.BindRetries)
	fmt.Fprintf(&b, "verbose:        %d\n", c.Verbose)
	return b.String()
}
