package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName   = "binderlaunch"
	envPrefix = "BINDERLAUNCH"
)

// Configuration keys, also used as flag names with '_' replaced by '-'
const (
	KeyBaseURL        = "base_url"
	KeyBuildToken     = "build_token"
	KeyOpenBrowser    = "open_browser"
	KeyNoTUI          = "no_tui"
	KeyLogLevel       = "log_level"
	KeyConnectTimeout = "connect_timeout"
)

const DefaultBaseURL = "https://mybinder.org/"

var (
	appDir string
	once   sync.Once
)

// Config is the resolved client configuration
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	BuildToken     string        `mapstructure:"build_token"`
	OpenBrowser    bool          `mapstructure:"open_browser"`
	NoTUI          bool          `mapstructure:"no_tui"`
	LogLevel       string        `mapstructure:"log_level"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// New returns a viper instance with defaults, environment binding and the
// config file search path set up. fs is where the config file is read from.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)

	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyBuildToken, "")
	v.SetDefault(KeyOpenBrowser, true)
	v.SetDefault(KeyNoTUI, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyConnectTimeout, 30*time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetApplicationDirectory())
	}

	return v
}

// Load reads the config file, if there is one, and returns the resolved config
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	baseURL, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return Config{}, err
	}

	cfg.BaseURL = baseURL

	if cfg.ConnectTimeout < 0 {
		return Config{}, fmt.Errorf("connect timeout must not be negative, got %s", cfg.ConnectTimeout)
	}

	return cfg, nil
}

// NormalizeBaseURL checks that raw is an absolute http(s) URL and makes sure
// its path ends with a slash, so "build/" resolves underneath it.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base url %q: scheme must be http or https", raw)
	}

	if u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: missing host", raw)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}

	return u.String(), nil
}

// GetApplicationDirectory returns the directory holding the history
// database, the log archive and the config file
func GetApplicationDirectory() string {
	once.Do(func() {
		if appDir = os.Getenv(envPrefix + "_HOME"); appDir == "" {
			dataDir, err := os.UserCacheDir()
			if err != nil {
				dataDir = os.TempDir()
			}

			appDir = filepath.Join(dataDir, appName)
		}

		if err := os.MkdirAll(appDir, 0755); err != nil {
			panic(err)
		}
	})

	return appDir
}

// GetHistoryPath returns the launch history database path
func GetHistoryPath() string {
	return filepath.Join(GetApplicationDirectory(), fmt.Sprintf("%s.bolt", appName))
}

// GetLogArchivePath returns the build log archive path
func GetLogArchivePath() string {
	return filepath.Join(GetApplicationDirectory(), "logs.db")
}

// GetLogFilePath returns where diagnostics go while the TUI owns the terminal
func GetLogFilePath() string {
	return filepath.Join(GetApplicationDirectory(), fmt.Sprintf("%s.log", appName))
}

type fileView struct {
	BaseURL        string `yaml:"base_url"`
	BuildToken     string `yaml:"build_token,omitempty"`
	OpenBrowser    bool   `yaml:"open_browser"`
	NoTUI          bool   `yaml:"no_tui"`
	LogLevel       string `yaml:"log_level"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// WriteYAML writes cfg in config file form. The build token is masked
// unless showSecrets is set.
func WriteYAML(w io.Writer, cfg Config, showSecrets bool) error {
	view := fileView{
		BaseURL:        cfg.BaseURL,
		BuildToken:     cfg.BuildToken,
		OpenBrowser:    cfg.OpenBrowser,
		NoTUI:          cfg.NoTUI,
		LogLevel:       cfg.LogLevel,
		ConnectTimeout: cfg.ConnectTimeout.String(),
	}

	if view.BuildToken != "" && !showSecrets {
		view.BuildToken = "********"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return enc.Close()
}
