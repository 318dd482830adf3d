// Package config provides the configuration structure for the podcast studio.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/book-expert/podcast-studio/internal/draft"
	"github.com/book-expert/podcast-studio/internal/notify"
	"github.com/book-expert/podcast-studio/internal/openai"
	"github.com/book-expert/podcast-studio/internal/tts"
	"github.com/book-expert/podcast-studio/internal/worker"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Draft backends.
const (
	DraftBackendMemory = "memory"
	DraftBackendNATS   = "nats"
	DraftBackendRedis  = "redis"
)

// Defaults not owned by another package.
const (
	DefaultAPIKeyEnv              = "OPENAI_API_KEY"
	DefaultNATSURL                = "nats://127.0.0.1:4222"
	DefaultAssetBucket            = "podcast-assets"
	DefaultDraftBucket            = "podcast-drafts"
	DefaultRedisPrefix            = "podcast-studio:"
	DefaultDocstorePath           = "data/podcasts.db"
	DefaultUploadTargetTTLSeconds = 900
)

// OpenAIConfig holds the settings shared by every provider call.
type OpenAIConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTSConfig holds the speech synthesis settings.
type TTSConfig struct {
	Model         string `toml:"model"`
	MaxInputChars int    `toml:"max_input_chars"`
	BitrateKbps   int    `toml:"bitrate_kbps"`
}

// ImageConfig holds the cover art settings.
type ImageConfig struct {
	Model   string `toml:"model"`
	Size    string `toml:"size"`
	Quality string `toml:"quality"`
}

// NewsConfig holds the search and script writing settings.
type NewsConfig struct {
	Model        string `toml:"model"`
	ArticleCount int    `toml:"article_count"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	SynthesizeSubject string `toml:"synthesize_subject"`
	PublishedSubject  string `toml:"published_subject"`
	PublishedStream   string `toml:"published_stream"`
	AssetBucket       string `toml:"asset_bucket"`
	DraftBucket       string `toml:"draft_bucket"`
}

// StorageConfig holds the asset storage settings.
type StorageConfig struct {
	PublicBaseURL          string `toml:"public_base_url"`
	UploadTargetTTLSeconds int    `toml:"upload_target_ttl_seconds"`
}

// DraftConfig selects where drafts live and how eagerly they are written.
type DraftConfig struct {
	Backend      string `toml:"backend"`
	Key          string `toml:"key"`
	ManualKey    string `toml:"manual_key"`
	DebounceMS   int    `toml:"debounce_ms"`
	ActivationMS int    `toml:"activation_ms"`
}

// RedisConfig holds the Redis draft backend settings.
type RedisConfig struct {
	URL      string `toml:"url"`
	Prefix   string `toml:"prefix"`
	TTLHours int    `toml:"ttl_hours"`
}

// DocstoreConfig holds the document store settings.
type DocstoreConfig struct {
	Path string `toml:"path"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	OpenAI   OpenAIConfig   `toml:"openai"`
	TTS      TTSConfig      `toml:"tts"`
	Image    ImageConfig    `toml:"image"`
	News     NewsConfig     `toml:"news"`
	NATS     NATSConfig     `toml:"nats"`
	Storage  StorageConfig  `toml:"storage"`
	Draft    DraftConfig    `toml:"draft"`
	Redis    RedisConfig    `toml:"redis"`
	Docstore DocstoreConfig `toml:"docstore"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration through the shared configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	setString(&c.OpenAI.BaseURL, openai.DefaultBaseURL)
	setString(&c.OpenAI.APIKeyEnv, DefaultAPIKeyEnv)
	setString(&c.TTS.Model, openai.DefaultSpeechModel)
	setInt(&c.TTS.MaxInputChars, openai.DefaultMaxInputChars)
	setInt(&c.TTS.BitrateKbps, tts.DefaultBitrateKbps)
	setString(&c.Image.Model, openai.DefaultImageModel)
	setString(&c.Image.Size, openai.DefaultImageSize)
	setString(&c.Image.Quality, openai.DefaultImageQuality)
	setString(&c.News.Model, openai.DefaultTextModel)
	setInt(&c.News.ArticleCount, openai.DefaultArticleCount)
	setString(&c.NATS.URL, DefaultNATSURL)
	setString(&c.NATS.SynthesizeSubject, worker.DefaultSubject)
	setString(&c.NATS.PublishedSubject, notify.DefaultSubject)
	setString(&c.NATS.PublishedStream, notify.DefaultStream)
	setString(&c.NATS.AssetBucket, DefaultAssetBucket)
	setString(&c.NATS.DraftBucket, DefaultDraftBucket)
	setInt(&c.Storage.UploadTargetTTLSeconds, DefaultUploadTargetTTLSeconds)
	setString(&c.Draft.Backend, DraftBackendNATS)
	setString(&c.Draft.Key, draft.DefaultKey)
	setString(&c.Draft.ManualKey, draft.ManualKey)
	setInt(&c.Draft.DebounceMS, int(draft.DefaultDebounce/time.Millisecond))
	setInt(&c.Draft.ActivationMS, int(draft.DefaultActivation/time.Millisecond))
	setString(&c.Redis.Prefix, DefaultRedisPrefix)
	setString(&c.Paths.BaseLogsDir, os.TempDir())
	setString(&c.Docstore.Path, DefaultDocstorePath)

	c.Draft.Backend = strings.ToLower(c.Draft.Backend)
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Draft.Backend {
	case DraftBackendMemory, DraftBackendNATS:
	case DraftBackendRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			return invalid("redis.url is required when draft.backend is redis")
		}
	default:
		return invalid(fmt.Sprintf("draft.backend must be memory, nats or redis, got '%s'", c.Draft.Backend))
	}

	if c.Draft.Key == c.Draft.ManualKey {
		return invalid("draft.key and draft.manual_key must differ")
	}

	if c.Draft.ActivationMS <= c.Draft.DebounceMS {
		return invalid("draft.activation_ms must be longer than draft.debounce_ms")
	}

	if c.OpenAI.TimeoutSeconds < 0 {
		return invalid("openai.timeout_seconds must not be negative")
	}

	if c.Redis.TTLHours < 0 {
		return invalid("redis.ttl_hours must not be negative")
	}

	return nil
}

// APIKey returns the provider key from the environment, reading a .env file
// in the working directory first when one exists.
func (c *Config) APIKey() (string, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", core.Wrap(core.ErrConfiguration, "load .env", "", err)
	}

	key := strings.TrimSpace(os.Getenv(c.OpenAI.APIKeyEnv))
	if key == "" {
		return "", core.Wrap(core.ErrConfiguration, "api key", c.OpenAI.APIKeyEnv+" is not set", nil)
	}

	return key, nil
}

// OpenAIClient maps the provider sections onto a client configuration.
func (c *Config) OpenAIClient(apiKey string) openai.Config {
	return openai.Config{
		APIKey:         apiKey,
		BaseURL:        c.OpenAI.BaseURL,
		SpeechModel:    c.TTS.Model,
		ImageModel:     c.Image.Model,
		TextModel:      c.News.Model,
		ImageSize:      c.Image.Size,
		ImageQuality:   c.Image.Quality,
		MaxInputChars:  c.TTS.MaxInputChars,
		TimeoutSeconds: c.OpenAI.TimeoutSeconds,
	}
}

// DraftOptions returns the persister timings.
func (c *Config) DraftOptions() draft.Options {
	return draft.Options{
		Debounce:   time.Duration(c.Draft.DebounceMS) * time.Millisecond,
		Activation: time.Duration(c.Draft.ActivationMS) * time.Millisecond,
	}
}

// UploadTargetTTL returns how long an upload target stays valid.
func (c *Config) UploadTargetTTL() time.Duration {
	return time.Duration(c.Storage.UploadTargetTTLSeconds) * time.Second
}

// RedisTTL returns the draft expiry. Zero keeps drafts until discarded.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLHours) * time.Hour
}

func setString(field *string, fallback string) {
	if strings.TrimSpace(*field) == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field <= 0 {
		*field = fallback
	}
}

func invalid(message string) error {
	return core.Wrap(core.ErrConfiguration, "validate config", message, nil)
}
