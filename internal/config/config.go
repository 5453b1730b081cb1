// Package config handles TOML configuration parsing for Runelink. A single
// config file may declare several server instances ([[servers]] entries);
// running more than one puts the process in cluster mode. Duplicate ports or
// database URLs across entries are rejected at load time.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/runelink/runelink/internal/hostutil"
)

// DefaultPort is the federation port assumed when an entry declares none.
const DefaultPort = 7000

// Root is the top-level configuration file shape.
type Root struct {
	Servers []Server      `toml:"servers"`
	Logging LoggingConfig `toml:"logging"`
}

// LoggingConfig defines structured logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Server is the configuration of one server instance.
type Server struct {
	LocalHostRaw string `toml:"local_host"`
	DatabaseURL  string `toml:"database_url"`
	Port         int    `toml:"port"`
	KeyDir       string `toml:"key_dir"`
}

// Load reads and validates the configuration from the given TOML file path.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	cfg := Root{Logging: LoggingConfig{Level: "info", Format: "json"}}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("config file %q must contain at least one [[servers]] entry", path)
	}

	for i := range cfg.Servers {
		if err := cfg.Servers[i].resolve(i); err != nil {
			return nil, err
		}
	}

	if err := validateUniqueResources(cfg.Servers); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolve trims fields, applies defaults, and validates a single entry.
func (s *Server) resolve(index int) error {
	if s.LocalHostRaw == "" {
		return fmt.Errorf("invalid server config at index %d: local_host cannot be empty", index)
	}
	if s.DatabaseURL == "" {
		return fmt.Errorf("invalid server config at index %d: database_url cannot be empty", index)
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid server config at index %d: port %d out of range", index, s.Port)
	}
	if s.KeyDir == "" {
		s.KeyDir = defaultKeyDir(s.Port)
	}
	return nil
}

// defaultKeyDir is the per-port key directory under the user's data dir.
func defaultKeyDir(port int) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "runelink", "keys", fmt.Sprint(port))
}

// validateUniqueResources rejects duplicate ports and database URLs.
func validateUniqueResources(servers []Server) error {
	firstByPort := make(map[int]int)
	firstByDB := make(map[string]int)
	for i, s := range servers {
		if j, ok := firstByPort[s.Port]; ok {
			return fmt.Errorf("invalid cluster config: duplicate port %d used by servers at indices %d and %d", s.Port, j, i)
		}
		firstByPort[s.Port] = i
		if j, ok := firstByDB[s.DatabaseURL]; ok {
			return fmt.Errorf("invalid cluster config: duplicate database_url %q used by servers at indices %d and %d", s.DatabaseURL, j, i)
		}
		firstByDB[s.DatabaseURL] = i
	}
	return nil
}

// LocalHost returns the host identity, with the port included only when it
// is not the default federation port.
func (s *Server) LocalHost() string {
	if s.Port == DefaultPort {
		return s.LocalHostRaw
	}
	return fmt.Sprintf("%s:%d", s.LocalHostRaw, s.Port)
}

// LocalHostWithPort always includes the port, for machine-to-machine use.
func (s *Server) LocalHostWithPort() string {
	return fmt.Sprintf("%s:%d", s.LocalHostRaw, s.Port)
}

// APIURL returns the canonical issuer / base URL of this instance.
func (s *Server) APIURL() string {
	return hostutil.APIURL(s.LocalHostWithPort())
}

// IsRemoteHost reports whether target names a host other than this instance.
// A nil target means "local".
func (s *Server) IsRemoteHost(target *string) bool {
	if target == nil {
		return false
	}
	return !hostutil.Equal(*target, s.LocalHost())
}
