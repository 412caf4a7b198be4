// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package config loads the backpork configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/backpork/backpork/locate"
	"github.com/backpork/backpork/patchrepo"
)

// Environment variables overriding the file.
const (
	HostEnv     = "BACKPORK_HOST"
	FTPPortEnv  = "BACKPORK_FTP_PORT"
	PatchURLEnv = "BACKPORK_PATCH_URL"
	CacheDirEnv = "BACKPORK_CACHE_DIR"
)

type Console struct {
	Host    string        `yaml:"host"`
	FTPPort int           `yaml:"ftp-port"`
	Timeout time.Duration `yaml:"timeout"`
}

type Patches struct {
	BaseURL  string        `yaml:"base-url"`
	CacheDir string        `yaml:"cache-dir"`
	Timeout  time.Duration `yaml:"timeout"`
	// RateLimit is in bytes per second, 0 for unlimited.
	RateLimit       int64 `yaml:"rate-limit"`
	StrictChecksums bool  `yaml:"strict-checksums"`
}

// Tools are command lines; the input and output paths are appended.
type Tools struct {
	Sign    []string      `yaml:"sign"`
	Decrypt []string      `yaml:"decrypt"`
	Timeout time.Duration `yaml:"timeout"`
}

type Locate struct {
	SearchPaths []string `yaml:"search-paths"`
}

type Daemon struct {
	Listen string `yaml:"listen"`
}

type Upload struct {
	RateLimit int64 `yaml:"rate-limit"`
}

// Config is the complete configuration.
type Config struct {
	Console  Console `yaml:"console"`
	Patches  Patches `yaml:"patches"`
	WorkDir  string  `yaml:"work-dir"`
	StateDir string  `yaml:"state-dir"`
	Tools    Tools   `yaml:"tools"`
	Locate   Locate  `yaml:"locate"`
	Daemon   Daemon  `yaml:"daemon"`
	Upload   Upload  `yaml:"upload"`
}

var (
	userCacheDir  = os.UserCacheDir
	userConfigDir = os.UserConfigDir
)

func cacheBase() string {
	dir, err := userCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "backpork")
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	dir, err := userConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "backpork", "config.yaml")
}

// Defaults returns the configuration used for anything the file and the
// environment leave unset.
func Defaults() *Config {
	base := cacheBase()
	return &Config{
		Console: Console{
			FTPPort: 2121,
			Timeout: 10 * time.Second,
		},
		Patches: Patches{
			BaseURL:  patchrepo.DefaultBaseURL,
			CacheDir: filepath.Join(base, "patches"),
			Timeout:  30 * time.Second,
		},
		WorkDir:  filepath.Join(base, "work"),
		StateDir: filepath.Join(base, "state"),
		Tools: Tools{
			Sign:    []string{"make_fself"},
			Timeout: 60 * time.Second,
		},
		Locate: Locate{
			SearchPaths: locate.DefaultSearchPaths(),
		},
		Daemon: Daemon{
			Listen: "127.0.0.1:8088",
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("cannot read configuration: %v", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse configuration %s: %v", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv(HostEnv); v != "" {
		cfg.Console.Host = v
	}
	if v := os.Getenv(FTPPortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %v", FTPPortEnv, v, err)
		}
		cfg.Console.FTPPort = port
	}
	if v := os.Getenv(PatchURLEnv); v != "" {
		cfg.Patches.BaseURL = v
	}
	if v := os.Getenv(CacheDirEnv); v != "" {
		cfg.Patches.CacheDir = v
	}
	return nil
}

// Validate checks the configuration for values that cannot work. An
// empty console host is allowed until something needs the console.
func (cfg *Config) Validate() error {
	if cfg.Console.FTPPort <= 0 || cfg.Console.FTPPort > 65535 {
		return fmt.Errorf("invalid console ftp-port %d", cfg.Console.FTPPort)
	}
	for name, d := range map[string]time.Duration{
		"console timeout": cfg.Console.Timeout,
		"patches timeout": cfg.Patches.Timeout,
		"tools timeout":   cfg.Tools.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s %v", name, d)
		}
	}
	u, err := url.Parse(cfg.Patches.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid patches base-url %q", cfg.Patches.BaseURL)
	}
	if cfg.Patches.RateLimit < 0 || cfg.Upload.RateLimit < 0 {
		return errors.New("rate limits cannot be negative")
	}
	for name, dir := range map[string]string{
		"patches cache-dir": cfg.Patches.CacheDir,
		"work-dir":          cfg.WorkDir,
		"state-dir":         cfg.StateDir,
	} {
		if dir == "" {
			return fmt.Errorf("%s is not set", name)
		}
	}
	if len(cfg.Tools.Sign) == 0 {
		return errors.New("tools sign command is not set")
	}
	if cfg.Daemon.Listen == "" {
		return errors.New("daemon listen address is not set")
	}
	return nil
}

// HistoryPath returns the batch history database location.
func (cfg *Config) HistoryPath() string {
	return filepath.Join(cfg.StateDir, "history.db")
}
