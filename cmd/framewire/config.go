// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bassosimone/framewire"
	"github.com/bassosimone/framewire/protocols/simple"
)

// fileConfig maps the keys of the TOML configuration file.
type fileConfig struct {
	Listen     string              `toml:"listen"`
	LogLevel   string              `toml:"log_level"`
	MaxBytes   int                 `toml:"max_bytes"`
	MaxChunks  int                 `toml:"max_chunks"`
	ChunkSize  int                 `toml:"chunk_size"`
	SimpleHost string              `toml:"simple_host"`
	PortOffset int                 `toml:"simple_port_offset"`
	Users      map[string]string   `toml:"finger_users"`
	Blocklist  map[string][]string `toml:"blocklist"`
}

// appConfig is the runtime configuration of the command.
type appConfig struct {
	Listen     string
	LogLevel   slog.Level
	MaxBytes   int
	MaxChunks  int
	ChunkSize  int
	SimpleHost string
	PortOffset int
	Users      map[string]string
	Blocklist  map[string][]netip.Prefix
}

func defaultAppConfig() appConfig {
	return appConfig{
		Listen:     "127.0.0.1:8080",
		LogLevel:   slog.LevelInfo,
		MaxBytes:   framewire.DefaultMaxBytes,
		MaxChunks:  framewire.DefaultMaxChunks,
		ChunkSize:  framewire.DefaultChunkSize,
		SimpleHost: "127.0.0.1",
		PortOffset: 10000,
		Users:      simple.DefaultFingerUsers(),
	}
}

// loadAppConfig overlays the TOML file at path on the defaults. An empty
// path selects the defaults.
func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return appConfig{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw.LogLevel)); err != nil {
			return appConfig{}, fmt.Errorf("load config: log_level: %w", err)
		}
	}
	if meta.IsDefined("max_bytes") {
		cfg.MaxBytes = raw.MaxBytes
	}
	if meta.IsDefined("max_chunks") {
		cfg.MaxChunks = raw.MaxChunks
	}
	if meta.IsDefined("chunk_size") {
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("simple_host") {
		cfg.SimpleHost = strings.TrimSpace(raw.SimpleHost)
	}
	if meta.IsDefined("simple_port_offset") {
		cfg.PortOffset = raw.PortOffset
	}
	if meta.IsDefined("finger_users") {
		cfg.Users = raw.Users
	}
	if meta.IsDefined("blocklist") {
		cfg.Blocklist = make(map[string][]netip.Prefix)
		for owner, ranges := range raw.Blocklist {
			for _, value := range ranges {
				prefix, err := netip.ParsePrefix(value)
				if err != nil {
					return appConfig{}, fmt.Errorf("load config: blocklist %q: %w", owner, err)
				}
				cfg.Blocklist[owner] = append(cfg.Blocklist[owner], prefix)
			}
		}
	}
	return cfg, cfg.validate()
}

func (c appConfig) validate() error {
	switch {
	case c.MaxBytes <= 0:
		return fmt.Errorf("config: max_bytes must be positive")
	case c.MaxChunks <= 0:
		return fmt.Errorf("config: max_chunks must be positive")
	case c.ChunkSize <= 0:
		return fmt.Errorf("config: chunk_size must be positive")
	case c.PortOffset < 0 || c.PortOffset > 65535-maxSimplePort:
		return fmt.Errorf("config: simple_port_offset out of range")
	default:
		return nil
	}
}

// maxSimplePort is the highest well-known simple service port.
const maxSimplePort = 79

// framewireConfig returns the [*framewire.Config] for c.
func (c appConfig) framewireConfig() *framewire.Config {
	cfg := framewire.NewConfig()
	cfg.MaxBytes = c.MaxBytes
	cfg.MaxChunks = c.MaxChunks
	cfg.ChunkSize = c.ChunkSize
	if len(c.Blocklist) > 0 {
		cfg.BlockedTargets = framewire.NewPrefixBlocklist(c.Blocklist)
	}
	return cfg
}
