// Package config loads bmark settings from an optional .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/XiaoConstantine/bmark/pkg/embed"
	"github.com/XiaoConstantine/bmark/pkg/semantic"
	"github.com/XiaoConstantine/bmark/pkg/server"
	"github.com/XiaoConstantine/bmark/pkg/util"
)

// Environment variables.
const (
	EnvHome            = "BMARK_HOME"
	EnvBookmarks       = "BMARK_BOOKMARKS"
	EnvSemantic        = "BMARK_SEMANTIC"
	EnvModel           = "BMARK_MODEL"
	EnvThreshold       = "BMARK_THRESHOLD"
	EnvDownloadTimeout = "BMARK_DOWNLOAD_TIMEOUT"
	EnvPort            = "BMARK_PORT"
	EnvDebug           = "BMARK_DEBUG"
)

const defaultDownloadTimeout = 600 * time.Second

// Config is the resolved configuration.
type Config struct {
	Home            string
	Bookmarks       string
	Semantic        bool
	Model           string
	Threshold       float32
	DownloadTimeout time.Duration
	Port            int
	Debug           util.DebugLevel
}

// Load reads .env from the working directory when present, then the
// environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset
// variables. Malformed values are errors.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Model:           embed.DefaultModel,
		Semantic:        true,
		Threshold:       semantic.DefaultThreshold,
		DownloadTimeout: defaultDownloadTimeout,
		Port:            server.DefaultPort,
	}

	cfg.Home = getenv(EnvHome)
	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.Home = filepath.Join(home, ".bmark")
	}

	cfg.Bookmarks = getenv(EnvBookmarks)
	if cfg.Bookmarks == "" {
		cfg.Bookmarks = filepath.Join(cfg.Home, "bookmarks.json")
	}

	if v := getenv(EnvModel); v != "" {
		cfg.Model = v
	}

	var errs []error
	if v := getenv(EnvSemantic); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", EnvSemantic, v))
		}
		cfg.Semantic = b
	}
	if v := getenv(EnvThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || f < -1 || f > 1 {
			errs = append(errs, fmt.Errorf("%s: %q is not a number in [-1, 1]", EnvThreshold, v))
		}
		cfg.Threshold = float32(f)
	}
	if v := getenv(EnvDownloadTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvDownloadTimeout, err))
		}
		cfg.DownloadTimeout = d
	}
	if v := getenv(EnvPort); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("%s: %q is not a port", EnvPort, v))
		}
		cfg.Port = p
	}
	if v := getenv(EnvDebug); v != "" {
		lvl, err := util.ParseDebugLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvDebug, err))
		}
		cfg.Debug = lvl
	}

	return cfg, errors.Join(errs...)
}

// parseSeconds accepts a plain number of seconds or a Go duration.
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseUint(v, 10, 32); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%q is neither seconds nor a duration", v)
	}
	return d, nil
}
