package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CHATSYNC"

// Keys double as flag names; the environment variable is the key upper-cased
// with dashes replaced, prefixed with CHATSYNC_.
const (
	KeyAPIURL          = "api-url"
	KeyRequestTimeout  = "request-timeout"
	KeyChatTimeout     = "chat-timeout"
	KeyUploadTimeout   = "upload-timeout"
	KeyUploadStatusTTL = "upload-status-ttl"
	KeyUploadAccept    = "upload-accept"
	KeyLogLevel        = "log-level"
	KeyLogFormat       = "log-format"
)

const (
	DefaultAPIURL          = "http://localhost:5000"
	DefaultRequestTimeout  = 10 * time.Second
	DefaultChatTimeout     = 60 * time.Second
	DefaultUploadTimeout   = 60 * time.Second
	DefaultUploadStatusTTL = 3 * time.Second
	DefaultUploadAccept    = ".pdf"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

type Config struct {
	APIURL          string
	RequestTimeout  time.Duration
	ChatTimeout     time.Duration
	UploadTimeout   time.Duration
	UploadStatusTTL time.Duration
	UploadAccept    []string
	LogLevel        string
	LogFormat       string
}

// Load resolves the configuration. Precedence, highest first: changed flags,
// environment, the .env files (default ./.env), built-in defaults. A missing
// .env file is not an error.
func Load(flags *pflag.FlagSet, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Wrap(err, "config: load .env")
		}
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	v, err := newViper(flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIURL:          strings.TrimSpace(v.GetString(KeyAPIURL)),
		RequestTimeout:  v.GetDuration(KeyRequestTimeout),
		ChatTimeout:     v.GetDuration(KeyChatTimeout),
		UploadTimeout:   v.GetDuration(KeyUploadTimeout),
		UploadStatusTTL: v.GetDuration(KeyUploadStatusTTL),
		UploadAccept:    splitList(v.GetString(KeyUploadAccept)),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:       strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyRequestTimeout, DefaultRequestTimeout)
	v.SetDefault(KeyChatTimeout, DefaultChatTimeout)
	v.SetDefault(KeyUploadTimeout, DefaultUploadTimeout)
	v.SetDefault(KeyUploadStatusTTL, DefaultUploadStatusTTL)
	v.SetDefault(KeyUploadAccept, DefaultUploadAccept)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// API_URL is accepted for deployments configured before the prefix existed.
	if err := v.BindEnv(KeyAPIURL, EnvPrefix+"_API_URL", "API_URL"); err != nil {
		return nil, errors.Wrap(err, "config: bind env")
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "config: bind flags")
		}
	}
	return v, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return errors.Wrapf(err, "config: invalid %s %q", KeyAPIURL, c.APIURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("config: %s %q must be an absolute http(s) URL", KeyAPIURL, c.APIURL)
	}

	for key, d := range map[string]time.Duration{
		KeyRequestTimeout:  c.RequestTimeout,
		KeyChatTimeout:     c.ChatTimeout,
		KeyUploadTimeout:   c.UploadTimeout,
		KeyUploadStatusTTL: c.UploadStatusTTL,
	} {
		if d <= 0 {
			return errors.Errorf("config: %s must be positive, got %s", key, d)
		}
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "config: invalid %s", KeyLogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.Errorf("config: %s must be text or json, got %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

// Accepts reports whether filename has one of the accepted upload extensions.
// An empty accept list allows everything.
func (c Config) Accepts(filename string) bool {
	if len(c.UploadAccept) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range c.UploadAccept {
		if ext == a {
			return true
		}
	}
	return false
}

// splitList reads a comma separated extension list, normalizing each entry to
// a lower-case ".ext".
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}
