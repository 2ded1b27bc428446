// Package config loads podcastify configuration from defaults, an optional
// YAML file, a .env file and PODCASTIFY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Prague must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"podcastify/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. PODCASTIFY_MEDIA_WORKERS.
const EnvPrefix = "PODCASTIFY"

// Config is the full application configuration.
type Config struct {
	Archive  ArchiveConfig `mapstructure:"archive"`
	Media    MediaConfig   `mapstructure:"media"`
	Channel  ChannelConfig `mapstructure:"channel"`
	Output   OutputConfig  `mapstructure:"output"`
	Logger   logger.Config `mapstructure:"logger"`
	Timezone string        `mapstructure:"timezone"`
}

// ArchiveConfig controls page discovery and extraction.
type ArchiveConfig struct {
	// ListingURL is the listing page template; %d is replaced by the offset.
	ListingURL     string        `mapstructure:"listing_url"`
	PageSize       int           `mapstructure:"page_size"`
	MaxPages       int           `mapstructure:"max_pages"`
	Workers        int           `mapstructure:"workers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MediaConfig controls the size probes.
type MediaConfig struct {
	Workers      int           `mapstructure:"workers"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// RateLimit is probes per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// ChannelConfig is the fixed channel metadata written into the feed.
type ChannelConfig struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Copyright   string `mapstructure:"copyright"`
	Link        string `mapstructure:"link"`
	ImageURL    string `mapstructure:"image_url"`
	Explicit    string `mapstructure:"explicit"`
	Category    string `mapstructure:"category"`
	Subcategory string `mapstructure:"subcategory"`
	OwnerName   string `mapstructure:"owner_name"`
	OwnerEmail  string `mapstructure:"owner_email"`
	Language    string `mapstructure:"language"`
	SelfURL     string `mapstructure:"self_url"`
}

// OutputConfig controls where a render goes.
type OutputConfig struct {
	// Path is the feed file; empty means stdout.
	Path        string `mapstructure:"path"`
	Validate    bool   `mapstructure:"validate"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// Defaults.
const (
	DefaultListingURL     = "http://hledani.rozhlas.cz/iRadio/?porad[]=Osudy&offset=%d"
	DefaultPageSize       = 10
	DefaultMaxPages       = 10
	DefaultArchiveWorkers = 4
	DefaultRequestTimeout = 30 * time.Second
	DefaultMediaWorkers   = 8
	DefaultProbeTimeout   = 10 * time.Second
	DefaultRateLimit      = 20.0
	DefaultTimezone       = "Europe/Prague"

	DefaultChannelTitle       = "Osudy"
	DefaultChannelDescription = "Autentické vzpomínky významných a zajímavých osobností zaznamenané na mikrofon a memoárová literatura převážně nežijících a zahraničních autorů čtená herci. Ojedinělá svědectví lidské paměti."
	DefaultChannelCopyright   = "Český rozhlas Vltava"
	DefaultChannelLink        = "http://zoul.github.io/Osudy/"
	DefaultChannelImageURL    = "http://i.imgur.com/hIZLilw.jpg"
	DefaultChannelExplicit    = "no"
	DefaultChannelCategory    = "Society & Culture"
	DefaultChannelSubcategory = "Personal Journals"
	DefaultChannelOwnerName   = "Tomáš Znamenáček"
	DefaultChannelOwnerEmail  = "tomas.znamenacek@gmail.com"
	DefaultChannelLanguage    = "cs"
	DefaultChannelSelfURL     = "http://zoul.github.io/Osudy/feed.xml"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// SetDefaults registers every key with its default so that Unmarshal also
// picks up environment overrides for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("archive.listing_url", DefaultListingURL)
	v.SetDefault("archive.page_size", DefaultPageSize)
	v.SetDefault("archive.max_pages", DefaultMaxPages)
	v.SetDefault("archive.workers", DefaultArchiveWorkers)
	v.SetDefault("archive.request_timeout", DefaultRequestTimeout)

	v.SetDefault("media.workers", DefaultMediaWorkers)
	v.SetDefault("media.probe_timeout", DefaultProbeTimeout)
	v.SetDefault("media.rate_limit", DefaultRateLimit)

	v.SetDefault("channel.title", DefaultChannelTitle)
	v.SetDefault("channel.description", DefaultChannelDescription)
	v.SetDefault("channel.copyright", DefaultChannelCopyright)
	v.SetDefault("channel.link", DefaultChannelLink)
	v.SetDefault("channel.image_url", DefaultChannelImageURL)
	v.SetDefault("channel.explicit", DefaultChannelExplicit)
	v.SetDefault("channel.category", DefaultChannelCategory)
	v.SetDefault("channel.subcategory", DefaultChannelSubcategory)
	v.SetDefault("channel.owner_name", DefaultChannelOwnerName)
	v.SetDefault("channel.owner_email", DefaultChannelOwnerEmail)
	v.SetDefault("channel.language", DefaultChannelLanguage)
	v.SetDefault("channel.self_url", DefaultChannelSelfURL)

	v.SetDefault("output.path", "")
	v.SetDefault("output.validate", false)
	v.SetDefault("output.metrics_file", "")

	v.SetDefault("logger.level", logger.DefaultLevel)
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.output_paths", logger.DefaultOutputPaths)

	v.SetDefault("timezone", DefaultTimezone)
}

// NewViper returns a viper instance with defaults, env binding and config
// search paths set. An empty cfgFile searches podcastify.yaml in . and ./config.
func NewViper(cfgFile string) *viper.Viper {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("podcastify")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// LoadEnvFile loads a .env file into the process environment. A missing
// file is not an error; existing variables are never overwritten.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ReadFile reads the configured file into v. When no explicit file was set
// and none is found on the search path, defaults and env are used.
func ReadFile(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Load builds a Config from an already prepared viper instance and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Logger.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile is the one-call variant used outside the CLI: .env, file, env, validate.
func LoadFile(cfgFile string) (*Config, error) {
	if err := LoadEnvFile(""); err != nil {
		return nil, err
	}
	v := NewViper(cfgFile)
	if err := ReadFile(v, cfgFile != ""); err != nil {
		return nil, err
	}
	return Load(v)
}

// Validate checks the values the pipeline relies on.
func (c *Config) Validate() error {
	var errs []error

	if strings.Count(c.Archive.ListingURL, "%d") != 1 {
		errs = append(errs, fmt.Errorf("archive.listing_url must contain exactly one %%d, got %q", c.Archive.ListingURL))
	}
	if c.Archive.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("archive.page_size must be positive, got %d", c.Archive.PageSize))
	}
	if c.Archive.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("archive.max_pages must be positive, got %d", c.Archive.MaxPages))
	}
	if c.Archive.Workers <= 0 {
		errs = append(errs, fmt.Errorf("archive.workers must be positive, got %d", c.Archive.Workers))
	}
	if c.Archive.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("archive.request_timeout must be positive, got %s", c.Archive.RequestTimeout))
	}
	if c.Media.Workers <= 0 {
		errs = append(errs, fmt.Errorf("media.workers must be positive, got %d", c.Media.Workers))
	}
	if c.Media.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("media.probe_timeout must be positive, got %s", c.Media.ProbeTimeout))
	}
	if c.Media.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("media.rate_limit must not be negative, got %v", c.Media.RateLimit))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Location returns the configured time zone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
