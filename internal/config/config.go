package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL     = "http://localhost:41184"
	DefaultRootFolder = "10-Hosts"
	DefaultLogLevel   = "info"
)

var ErrMissingToken = errors.New("JOPLIN_SYNC_TOKEN is not set")

type Config struct {
	APIURL string // JOPLIN_API_URL
	Token  string // JOPLIN_SYNC_TOKEN, required

	LogLevel  string // "debug" | "info" | "warn" | "error"
	LogFormat string // "text" | "json"

	RootFolder   string        // top-level folder holding all segments
	SyncTodos    bool          // create the per-host TODO folder and checklist notes
	TodoFile     string        // optional YAML checklist, empty = built-in list
	RequestDelay time.Duration // minimum spacing between API requests, 0 = disabled
	MetricsFile  string        // optional node-exporter textfile path
}

// LoadDotenv loads variables from the given .env files (default ".env")
// without overriding the process environment. A missing file is not an error.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	syncTodos, err := getenvBool("JOPLIN_SYNC_TODOS", true)
	if err != nil {
		return nil, err
	}
	delay, err := getenvDuration("JOPLIN_REQUEST_DELAY", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:       getenv("JOPLIN_API_URL", DefaultAPIURL),
		Token:        os.Getenv("JOPLIN_SYNC_TOKEN"),
		LogLevel:     getenv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:    getenv("LOG_FORMAT", "text"),
		RootFolder:   getenv("JOPLIN_ROOT_FOLDER", DefaultRootFolder),
		SyncTodos:    syncTodos,
		TodoFile:     os.Getenv("JOPLIN_TODO_FILE"),
		RequestDelay: delay,
		MetricsFile:  os.Getenv("JOPLIN_METRICS_FILE"),
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	return cfg, nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
