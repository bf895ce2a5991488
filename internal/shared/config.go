package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

//go:embed config.example.toml
var exampleConf []byte

// MinDelay is the lower bound for any inter-row delay.
const MinDelay = time.Second

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LogLevel    string            `toml:"log_level"`
	Paths       PathsConfig       `toml:"paths"`
	Database    DatabaseConfig    `toml:"database"`
	Credentials CredentialsConfig `toml:"credentials"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Songstats   SongstatsConfig   `toml:"songstats"`
	Discogs     DiscogsConfig     `toml:"discogs"`
	Download    DownloadConfig    `toml:"download"`
}

// PathsConfig holds the input file and the per-stage checkpoint files.
type PathsConfig struct {
	Input     string `toml:"input"`
	Songstats string `toml:"songstats"`
	Discogs   string `toml:"discogs"`
	Master    string `toml:"master"`
	Downloads string `toml:"downloads"`
	OutputDir string `toml:"output_dir"`
}

// DatabaseConfig contains run ledger connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig      `toml:"spotify"`
	Discogs DiscogsCredentials `toml:"discogs"`
}

// SpotifyConfig contains Spotify client-credentials used to resolve missing ISRCs.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DiscogsCredentials contains the Discogs consumer key pair.
type DiscogsCredentials struct {
	ConsumerKey    string `toml:"consumer_key"`
	ConsumerSecret string `toml:"consumer_secret"`
	UserAgent      string `toml:"user_agent"`
}

// PipelineConfig holds the settings shared by every row-processing stage.
type PipelineConfig struct {
	MaxRuntimeMinutes   int     `toml:"max_runtime_minutes"`
	CheckpointEvery     int     `toml:"checkpoint_every"`
	MinDelaySeconds     float64 `toml:"min_delay_seconds"`
	MaxDelaySeconds     float64 `toml:"max_delay_seconds"`
	RetryAttempts       int     `toml:"retry_attempts"`
	RetryBackoffSeconds float64 `toml:"retry_backoff_seconds"`
	CallTimeoutSeconds  int     `toml:"call_timeout_seconds"`
	MaxRows             int     `toml:"max_rows"`
	ForceRetry          bool    `toml:"force_retry"`
}

// SongstatsConfig configures the primary link provider.
type SongstatsConfig struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DiscogsConfig configures the fallback link provider.
type DiscogsConfig struct {
	BaseURL                string  `toml:"base_url"`
	RequestIntervalSeconds float64 `toml:"request_interval_seconds"`
	SearchLimit            int     `toml:"search_limit"`
}

// DownloadConfig configures the download orchestrator.
type DownloadConfig struct {
	TolerancePercent      float64 `toml:"tolerance_percent"`
	ToleranceFloorSeconds int     `toml:"tolerance_floor_seconds"`
	MinDelaySeconds       float64 `toml:"min_delay_seconds"`
	MaxDelaySeconds       float64 `toml:"max_delay_seconds"`
	SearchLimit           int     `toml:"search_limit"`
	FetchTimeoutSeconds   int     `toml:"fetch_timeout_seconds"`
	AudioFormat           string  `toml:"audio_format"`
	AudioQuality          string  `toml:"audio_quality"`
	EmbedMetadata         bool    `toml:"embed_metadata"`
	EmbedArtwork          bool    `toml:"embed_artwork"`
	ArtworkSize           int     `toml:"artwork_size"`
	RetryFailed           bool    `toml:"retry_failed"`
	LongPauseEvery        int     `toml:"long_pause_every"`
	LongPauseMinSeconds   int     `toml:"long_pause_min_seconds"`
	LongPauseMaxSeconds   int     `toml:"long_pause_max_seconds"`
	CooldownAfterFailures int     `toml:"cooldown_after_failures"`
	CooldownMinutes       int     `toml:"cooldown_minutes"`
	YtDlpPath             string  `toml:"ytdlp_path"`
	CookiesFile           string  `toml:"cookies_file"`
}

// MaxRuntime is the wall-clock ceiling of a stage; zero means unbounded.
func (p PipelineConfig) MaxRuntime() time.Duration {
	return time.Duration(p.MaxRuntimeMinutes) * time.Minute
}

// DelayRange returns the inter-row delay bounds.
func (p PipelineConfig) DelayRange() (time.Duration, time.Duration) {
	return seconds(p.MinDelaySeconds), seconds(p.MaxDelaySeconds)
}

func (p PipelineConfig) RetryBackoff() time.Duration { return seconds(p.RetryBackoffSeconds) }
func (p PipelineConfig) CallTimeout() time.Duration  { return time.Duration(p.CallTimeoutSeconds) * time.Second }

// DelayRange returns the delay bounds between downloads.
func (d DownloadConfig) DelayRange() (time.Duration, time.Duration) {
	return seconds(d.MinDelaySeconds), seconds(d.MaxDelaySeconds)
}

// LongPauseRange returns the bounds of the periodic long pause.
func (d DownloadConfig) LongPauseRange() (time.Duration, time.Duration) {
	return time.Duration(d.LongPauseMinSeconds) * time.Second, time.Duration(d.LongPauseMaxSeconds) * time.Second
}

func (d DownloadConfig) Cooldown() time.Duration { return time.Duration(d.CooldownMinutes) * time.Minute }

func (d DownloadConfig) FetchTimeout() time.Duration {
	return time.Duration(d.FetchTimeoutSeconds) * time.Second
}

// RequestInterval is the minimum spacing between Songstats requests; zero means unlimited.
func (s SongstatsConfig) RequestInterval() time.Duration {
	if s.RequestsPerSecond <= 0 {
		return 0
	}
	return seconds(1 / s.RequestsPerSecond)
}

// RequestInterval is the minimum spacing between Discogs requests.
func (d DiscogsConfig) RequestInterval() time.Duration { return seconds(d.RequestIntervalSeconds) }

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// LoadConfig reads a TOML configuration file and overlays it on the embedded defaults.
// Credentials found in the environment replace empty config values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrMissingConfig, err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrInvalidConfig, err)
	}

	config.ApplyEnv()
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.ApplyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteFileAtomic(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv fills empty credentials from the environment.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Credentials.Discogs.ConsumerKey, "DISCOGS_CONSUMER_KEY")
	setFromEnv(&c.Credentials.Discogs.ConsumerSecret, "DISCOGS_CONSUMER_SECRET")
	setFromEnv(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setFromEnv(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
}

// normalize clamps delays to [MinDelay] and fills zero counters with their minimum.
func (c *Config) normalize() {
	clampDelay := func(lo, hi *float64) {
		floor := MinDelay.Seconds()
		if *lo < floor {
			*lo = floor
		}
		if *hi < *lo {
			*hi = *lo
		}
	}
	clampDelay(&c.Pipeline.MinDelaySeconds, &c.Pipeline.MaxDelaySeconds)
	clampDelay(&c.Download.MinDelaySeconds, &c.Download.MaxDelaySeconds)

	if c.Pipeline.CheckpointEvery < 1 {
		c.Pipeline.CheckpointEvery = 1
	}
	if c.Pipeline.RetryAttempts < 1 {
		c.Pipeline.RetryAttempts = 1
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Download.Validate(); err != nil {
		return err
	}
	if c.Discogs.SearchLimit < 1 {
		return fmt.Errorf("%w: discogs.search_limit must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the bounds of the shared stage settings.
func (p PipelineConfig) Validate() error {
	var errs []error
	if p.MaxRuntimeMinutes < 0 {
		errs = append(errs, errors.New("pipeline.max_runtime_minutes must not be negative"))
	}
	if p.CheckpointEvery < 1 {
		errs = append(errs, errors.New("pipeline.checkpoint_every must be at least 1"))
	}
	if p.MinDelaySeconds < MinDelay.Seconds() {
		errs = append(errs, fmt.Errorf("pipeline.min_delay_seconds must be at least %v", MinDelay.Seconds()))
	}
	if p.MaxDelaySeconds < p.MinDelaySeconds {
		errs = append(errs, errors.New("pipeline.max_delay_seconds must be >= min_delay_seconds"))
	}
	if p.RetryAttempts < 1 {
		errs = append(errs, errors.New("pipeline.retry_attempts must be at least 1"))
	}
	if p.CallTimeoutSeconds < 1 {
		errs = append(errs, errors.New("pipeline.call_timeout_seconds must be at least 1"))
	}
	if p.MaxRows < 0 {
		errs = append(errs, errors.New("pipeline.max_rows must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the download settings.
func (d DownloadConfig) Validate() error {
	var errs []error
	if d.TolerancePercent <= 0 || d.TolerancePercent > 100 {
		errs = append(errs, errors.New("download.tolerance_percent must be in (0, 100]"))
	}
	if d.ToleranceFloorSeconds < 0 {
		errs = append(errs, errors.New("download.tolerance_floor_seconds must not be negative"))
	}
	if d.MaxDelaySeconds < d.MinDelaySeconds {
		errs = append(errs, errors.New("download.max_delay_seconds must be >= min_delay_seconds"))
	}
	if d.SearchLimit < 1 {
		errs = append(errs, errors.New("download.search_limit must be at least 1"))
	}
	if d.FetchTimeoutSeconds < 1 {
		errs = append(errs, errors.New("download.fetch_timeout_seconds must be at least 1"))
	}
	if strings.TrimSpace(d.AudioFormat) == "" {
		errs = append(errs, errors.New("download.audio_format must be set"))
	}
	if d.LongPauseMaxSeconds < d.LongPauseMinSeconds {
		errs = append(errs, errors.New("download.long_pause_max_seconds must be >= long_pause_min_seconds"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func setFromEnv(dst *string, key string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
