package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String(KeyAPIURL, DefaultAPIURL, "")
	fs.String(KeyLogLevel, DefaultLogLevel, "")
	fs.Duration(KeyChatTimeout, DefaultChatTimeout, "")
	return fs
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"API_URL", "CHATSYNC_API_URL", "CHATSYNC_LOG_LEVEL", "CHATSYNC_LOG_FORMAT",
		"CHATSYNC_CHAT_TIMEOUT", "CHATSYNC_UPLOAD_ACCEPT", "CHATSYNC_UPLOAD_STATUS_TTL",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(newFlags(t), missingEnvFile(t))
	require.NoError(t, err)
	require.Equal(t, Config{
		APIURL:          DefaultAPIURL,
		RequestTimeout:  DefaultRequestTimeout,
		ChatTimeout:     DefaultChatTimeout,
		UploadTimeout:   DefaultUploadTimeout,
		UploadStatusTTL: DefaultUploadStatusTTL,
		UploadAccept:    []string{".pdf"},
		LogLevel:        "info",
		LogFormat:       "text",
	}, cfg)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CHATSYNC_API_URL=http://dotenv:1\nCHATSYNC_LOG_LEVEL=warn\nCHATSYNC_UPLOAD_ACCEPT=PDF, .txt\n"), 0o600))

	// .env beats defaults
	cfg, err := Load(newFlags(t), envFile)
	require.NoError(t, err)
	require.Equal(t, "http://dotenv:1", cfg.APIURL)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, []string{".pdf", ".txt"}, cfg.UploadAccept)

	// the environment beats .env
	clearEnv(t)
	t.Setenv("CHATSYNC_API_URL", "http://env:2")
	cfg, err = Load(newFlags(t), envFile)
	require.NoError(t, err)
	require.Equal(t, "http://env:2", cfg.APIURL)

	// a changed flag beats the environment
	fs := newFlags(t)
	require.NoError(t, fs.Parse([]string{"--api-url", "http://flag:3", "--chat-timeout", "5s"}))
	cfg, err = Load(fs, envFile)
	require.NoError(t, err)
	require.Equal(t, "http://flag:3", cfg.APIURL)
	require.Equal(t, 5*time.Second, cfg.ChatTimeout)
}

func TestLoad_LegacyAPIURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_URL", "https://legacy.example.com")

	cfg, err := Load(nil, missingEnvFile(t))
	require.NoError(t, err)
	require.Equal(t, "https://legacy.example.com", cfg.APIURL)

	t.Setenv("CHATSYNC_API_URL", "https://preferred.example.com")
	cfg, err = Load(nil, missingEnvFile(t))
	require.NoError(t, err)
	require.Equal(t, "https://preferred.example.com", cfg.APIURL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"relative url":  {"CHATSYNC_API_URL": "localhost:5000"},
		"bad scheme":    {"CHATSYNC_API_URL": "ftp://example.com"},
		"bad log level": {"CHATSYNC_LOG_LEVEL": "loud"},
		"bad format":    {"CHATSYNC_LOG_FORMAT": "xml"},
		"zero ttl":      {"CHATSYNC_UPLOAD_STATUS_TTL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(nil, missingEnvFile(t))
			require.Error(t, err)
		})
	}
}

func TestConfig_Accepts(t *testing.T) {
	cfg := Config{UploadAccept: []string{".pdf", ".md"}}
	require.True(t, cfg.Accepts("report.PDF"))
	require.True(t, cfg.Accepts("dir/notes.md"))
	require.False(t, cfg.Accepts("image.png"))
	require.False(t, cfg.Accepts("noext"))

	require.True(t, Config{}.Accepts("anything.bin"))
}
