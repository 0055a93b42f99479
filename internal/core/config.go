package core

import (
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	PoolName string `json:"pool_name" yaml:"pool_name"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

type APIConfig struct {
	QuakeToken     string `json:"quake_token" yaml:"quake_token"`
	HotelsToken    string `json:"hotels_token" yaml:"hotels_token"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type PathConfig struct {
	SourceDir    string `json:"source_dir" yaml:"source_dir"`
	DownloadDir  string `json:"download_dir" yaml:"download_dir"`
	HotelsDir    string `json:"hotels_dir" yaml:"hotels_dir"`
	MulticastDir string `json:"multicast_dir" yaml:"multicast_dir"`
	OutputFile   string `json:"output_file" yaml:"output_file"`
}

// Config is the pipeline configuration, resolved once from the environment.
// The groups are held by value so accessors hand out copies.
type Config struct {
	db    DatabaseConfig
	api   APIConfig
	paths PathConfig
}

// BuildConfig resolves every field from its environment variable, substituting the
// default when the variable is unset or empty.
func BuildConfig() *Config {
	return &Config{
		db: DatabaseConfig{
			Driver:   envOr("DB_DRIVER", "mysql"),
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envIntOr("DB_PORT", 0),
			User:     envOr("DB_USER", "iptv"),
			Password: envOr("DB_PASSWORD", "iptv"),
			Database: envOr("DB_NAME", "iptv"),
			PoolName: envOr("DB_POOL_NAME", "iptv_pool"),
			PoolSize: envIntOr("DB_POOL_SIZE", 10),
		},
		api: APIConfig{
			QuakeToken:     envOr("QUAKE_TOKEN", ""),
			HotelsToken:    envOr("HOTELS_TOKEN", ""),
			TimeoutSeconds: envIntOr("API_TIMEOUT", 30),
		},
		paths: PathConfig{
			SourceDir:    envOr("SOURCE_DIR", "source/"),
			DownloadDir:  envOr("DOWNLOAD_DIR", "source/download/"),
			HotelsDir:    envOr("HOTELS_DIR", "source/hotels/"),
			MulticastDir: envOr("MULTICAST_DIR", "source/multicast/"),
			OutputFile:   envOr("OUTPUT_FILE", "source/iptv.txt"),
		},
	}
}

func (c *Config) Database() DatabaseConfig { return c.db }

func (c *Config) API() APIConfig { return c.api }

func (c *Config) Paths() PathConfig { return c.paths }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Debug().Str("key", key).Str("value", v).Int("default", def).Msg("invalid integer, using default")
		return def
	}
	return n
}

// Mask hides all but the last four characters of a secret for display.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
