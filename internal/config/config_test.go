package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadSingleServer(t *testing.T) {
	path := writeConfig(t, `
[[servers]]
local_host = "h1"
database_url = "postgres://localhost/runelink_h1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(cfg.Servers))
	}
	s := cfg.Servers[0]
	if s.Port != 7000 {
		t.Errorf("Port = %d, want default 7000", s.Port)
	}
	if s.KeyDir == "" {
		t.Error("KeyDir default not applied")
	}
	if got := s.LocalHost(); got != "h1" {
		t.Errorf("LocalHost() = %q, want %q (default port omitted)", got, "h1")
	}
	if got := s.LocalHostWithPort(); got != "h1:7000" {
		t.Errorf("LocalHostWithPort() = %q", got)
	}
	if got := s.APIURL(); got != "http://h1:7000" {
		t.Errorf("APIURL() = %q", got)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadClusterMode(t *testing.T) {
	path := writeConfig(t, `
[[servers]]
local_host = "h1"
database_url = "postgres://localhost/runelink_h1"

[[servers]]
local_host = "h2"
database_url = "postgres://localhost/runelink_h2"
port = 7001
key_dir = "/tmp/runelink-keys-h2"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(cfg.Servers))
	}
	if got := cfg.Servers[1].LocalHost(); got != "h2:7001" {
		t.Errorf("LocalHost() = %q, want %q (non-default port kept)", got, "h2:7001")
	}
	if cfg.Servers[1].KeyDir != "/tmp/runelink-keys-h2" {
		t.Errorf("KeyDir = %q", cfg.Servers[1].KeyDir)
	}
}

func TestLoadRejections(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{"no servers", "", "at least one [[servers]] entry"},
		{
			"duplicate port",
			`
[[servers]]
local_host = "h1"
database_url = "postgres://localhost/a"

[[servers]]
local_host = "h2"
database_url = "postgres://localhost/b"
`,
			"duplicate port",
		},
		{
			"duplicate database url",
			`
[[servers]]
local_host = "h1"
database_url = "postgres://localhost/a"

[[servers]]
local_host = "h2"
database_url = "postgres://localhost/a"
port = 7001
`,
			"duplicate database_url",
		},
		{
			"empty local host",
			`
[[servers]]
local_host = ""
database_url = "postgres://localhost/a"
`,
			"local_host cannot be empty",
		},
		{
			"empty database url",
			`
[[servers]]
local_host = "h1"
database_url = ""
`,
			"database_url cannot be empty",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.contents))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Load err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestIsRemoteHost(t *testing.T) {
	s := Server{LocalHostRaw: "h1", Port: 7000}
	h1 := "h1"
	h1Padded := "h1:7000"
	h2 := "h2"
	tests := []struct {
		name   string
		target *string
		want   bool
	}{
		{"nil target", nil, false},
		{"same host short form", &h1, false},
		{"same host padded", &h1Padded, false},
		{"different host", &h2, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.IsRemoteHost(tc.target); got != tc.want {
				t.Errorf("IsRemoteHost(%v) = %v, want %v", tc.target, got, tc.want)
			}
		})
	}
}
