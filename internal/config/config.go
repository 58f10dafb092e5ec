// Package config loads the server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Transports accepted by Config.Transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Paths served by the legacy transport. The streaming endpoint may not
// shadow them.
const (
	legacyStreamPath  = "/sse"
	legacyMessagePath = "/messages"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every runtime setting. Field tags name the environment
// variable and its default.
type Config struct {
	Transport     string        `env:"MCP_TRANSPORT,default=stdio"`
	Host          string        `env:"MCP_HOST,default=127.0.0.1"`
	Port          int           `env:"MCP_PORT,default=3000"`
	Endpoint      string        `env:"MCP_ENDPOINT,default=/mcp"`
	JSONResponse  bool          `env:"MCP_JSON_RESPONSE"`
	Verbose       bool          `env:"MCP_VERBOSE"`
	ShutdownGrace time.Duration `env:"MCP_SHUTDOWN_GRACE,default=10s"`

	OSAScript      string        `env:"DRAFTS_OSASCRIPT,default=osascript"`
	ScriptsDir     string        `env:"DRAFTS_SCRIPTS_DIR"`
	CacheTTL       time.Duration `env:"DRAFTS_CACHE_TTL,default=30s"`
	CacheRedisAddr string        `env:"DRAFTS_CACHE_REDIS_ADDR"`
}

// Load decodes the environment into a Config. A value that does not parse
// is an error. It does not validate; flags may still override fields before
// Validate runs.
func Load() (Config, error) {
	var c Config
	if err := envdecode.StrictDecode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return c, nil
}

// Validate reports the first setting that cannot be served.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("%w: transport must be %q or %q, got %q", ErrInvalid, TransportStdio, TransportHTTP, c.Transport)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return fmt.Errorf("%w: endpoint %q must start with /", ErrInvalid, c.Endpoint)
	}
	if c.Endpoint == legacyStreamPath || c.Endpoint == legacyMessagePath {
		return fmt.Errorf("%w: endpoint %q collides with the legacy transport", ErrInvalid, c.Endpoint)
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("%w: negative shutdown grace %s", ErrInvalid, c.ShutdownGrace)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: negative cache ttl %s", ErrInvalid, c.CacheTTL)
	}
	return nil
}

// Addr is the listen address for the HTTP transport.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
