package cli

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the CLI.
type Config struct {
	// Root data directory holding documents/, backups/ and the index
	// snapshots. Default is ~/doclib.
	Root string `yaml:"root"`

	// Max concurrent workers for bulk operations (verify, cleanup).
	// Large values increase CPU and disk pressure. Default is 10.
	MaxConcurrency int `yaml:"max_concurrency"`
}

var DefaultConfig = Config{
	MaxConcurrency: 10,
}

// configPath returns the config file location, respecting XDG_CONFIG_HOME.
func configPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "doclib", "config.yml")
}

// LoadConfig resolves configuration in increasing precedence: built-in
// defaults, the optional yaml config file, an optional .env file in the
// working directory, then DOCLIB_* environment variables.
func LoadConfig() *Config {
	cfg := DefaultConfig

	if home, err := os.UserHomeDir(); err == nil {
		cfg.Root = filepath.Join(home, "doclib")
	}

	if path := configPath(); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				log.Fatalf("invalid config file %s: %v\n", path, err)
			}
		}
	}

	// A missing .env is not an error.
	godotenv.Load()

	if root := os.Getenv("DOCLIB_ROOT"); root != "" {
		cfg.Root = root
	}
	if raw := os.Getenv("DOCLIB_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			log.Fatalf("invalid DOCLIB_CONCURRENCY: %q\n", raw)
		}
		cfg.MaxConcurrency = n
	}

	if cfg.Root == "" {
		log.Fatalln("no data root configured: set root in the config file or DOCLIB_ROOT")
	}
	return &cfg
}
