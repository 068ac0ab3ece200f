package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tanq16/oglauncher/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "OGLAUNCHER"
	FileName  = ".oglauncher"
)

var (
	ErrInvalidInstanceName = errors.New("instance name must be non-empty and contain no path separators")
	ErrInvalidBridgeAddr   = errors.New("bridge address must be host:port")
	ErrInvalidTimeout      = errors.New("http timeouts must not be negative")
	ErrInvalidConcurrency  = errors.New("publish concurrency must be at least 1")
	ErrMissingBucket       = errors.New("publish bucket must be set")
	ErrMissingBaseURL      = errors.New("publish base url must be set")
)

// Config holds all application configuration
type Config struct {
	Instance InstanceConfig `mapstructure:"instance"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Log      LogConfig      `mapstructure:"log"`
}

type InstanceConfig struct {
	Name    string `mapstructure:"name"`
	LockDir string `mapstructure:"lock_dir"`
}

type HTTPConfig struct {
	Timeout          time.Duration     `mapstructure:"timeout"`
	KeepAliveTimeout time.Duration     `mapstructure:"keep_alive_timeout"`
	UserAgent        string            `mapstructure:"user_agent"`
	Proxy            string            `mapstructure:"proxy"`
	ProxyUsername    string            `mapstructure:"proxy_username"`
	ProxyPassword    string            `mapstructure:"proxy_password"`
	Headers          map[string]string `mapstructure:"headers"`
}

type BridgeConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PublishConfig describes where release bundles are uploaded.
type PublishConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BaseURL         string `mapstructure:"base_url"`
	BundleGlob      string `mapstructure:"bundle_glob"`
	Platform        string `mapstructure:"platform"`
	Version         string `mapstructure:"version"`
	Concurrency     int    `mapstructure:"concurrency"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Instance: InstanceConfig{
			Name:    utils.DefaultLockName,
			LockDir: filepath.Join(os.TempDir(), utils.AppName),
		},
		HTTP: HTTPConfig{
			Timeout:          0, // transfers of large game files must not time out
			KeepAliveTimeout: 90 * time.Second,
			UserAgent:        utils.ToolUserAgent,
			Headers:          map[string]string{},
		},
		Bridge: BridgeConfig{
			Addr:           utils.DefaultBridgeAddr,
			AllowedOrigins: append([]string(nil), utils.DefaultFrontendOrigins...),
		},
		Publish: PublishConfig{
			Region:      "auto",
			Prefix:      "launcher-kit",
			BundleGlob:  "*.msi.zip",
			Platform:    "windows-x86_64",
			Concurrency: 4,
		},
	}
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("instance.name", c.Instance.Name)
	v.SetDefault("instance.lock_dir", c.Instance.LockDir)
	v.SetDefault("http.timeout", c.HTTP.Timeout)
	v.SetDefault("http.keep_alive_timeout", c.HTTP.KeepAliveTimeout)
	v.SetDefault("http.user_agent", c.HTTP.UserAgent)
	v.SetDefault("http.proxy", c.HTTP.Proxy)
	v.SetDefault("http.proxy_username", c.HTTP.ProxyUsername)
	v.SetDefault("http.proxy_password", c.HTTP.ProxyPassword)
	v.SetDefault("bridge.addr", c.Bridge.Addr)
	v.SetDefault("bridge.allowed_origins", c.Bridge.AllowedOrigins)
	v.SetDefault("publish.endpoint", c.Publish.Endpoint)
	v.SetDefault("publish.region", c.Publish.Region)
	v.SetDefault("publish.bucket", c.Publish.Bucket)
	v.SetDefault("publish.prefix", c.Publish.Prefix)
	v.SetDefault("publish.access_key_id", c.Publish.AccessKeyID)
	v.SetDefault("publish.secret_access_key", c.Publish.SecretAccessKey)
	v.SetDefault("publish.base_url", c.Publish.BaseURL)
	v.SetDefault("publish.bundle_glob", c.Publish.BundleGlob)
	v.SetDefault("publish.platform", c.Publish.Platform)
	v.SetDefault("publish.version", c.Publish.Version)
	v.SetDefault("publish.concurrency", c.Publish.Concurrency)
	v.SetDefault("log.debug", c.Log.Debug)
}

// Load reads the config file at path, or $HOME/.oglauncher.yaml when path is
// empty, layering OGLAUNCHER_* environment variables over it. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewDefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	} else {
		log.Debug().Str("op", "config/load").Err(err).Msg("no home directory, using defaults")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %v", err)
		}
	} else {
		log.Debug().Str("op", "config/load").Str("file", v.ConfigFileUsed()).Msg("using config file")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %v", err)
	}
	if cfg.HTTP.Headers == nil {
		cfg.HTTP.Headers = map[string]string{}
	}
	return cfg, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	name := c.Instance.Name
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ErrInvalidInstanceName
	}
	if c.HTTP.Timeout < 0 || c.HTTP.KeepAliveTimeout < 0 {
		return ErrInvalidTimeout
	}
	if _, _, err := net.SplitHostPort(c.Bridge.Addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBridgeAddr, err)
	}
	if c.Publish.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	return nil
}

// ValidatePublish checks the fields only the publish command needs.
func (c *Config) ValidatePublish() error {
	if c.Publish.Bucket == "" {
		return ErrMissingBucket
	}
	if c.Publish.BaseURL == "" {
		return ErrMissingBaseURL
	}
	return nil
}

// HTTPClientConfig maps the http section onto the client wrapper settings.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	// viper lowercases map keys
	headers := make(map[string]string, len(c.HTTP.Headers))
	for k, v := range c.HTTP.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	return utils.HTTPClientConfig{
		Timeout:       c.HTTP.Timeout,
		KATimeout:     c.HTTP.KeepAliveTimeout,
		ProxyURL:      c.HTTP.Proxy,
		ProxyUsername: c.HTTP.ProxyUsername,
		ProxyPassword: c.HTTP.ProxyPassword,
		UserAgent:     c.HTTP.UserAgent,
		Headers:       headers,
	}
}

// YAML renders c the way a user would write the config file by hand.
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"instance": map[string]any{
			"name":     c.Instance.Name,
			"lock_dir": c.Instance.LockDir,
		},
		"http": map[string]any{
			"timeout":            c.HTTP.Timeout.String(),
			"keep_alive_timeout": c.HTTP.KeepAliveTimeout.String(),
			"user_agent":         c.HTTP.UserAgent,
			"proxy":              c.HTTP.Proxy,
			"proxy_username":     c.HTTP.ProxyUsername,
			"proxy_password":     c.HTTP.ProxyPassword,
			"headers":            c.HTTP.Headers,
		},
		"bridge": map[string]any{
			"addr":            c.Bridge.Addr,
			"allowed_origins": c.Bridge.AllowedOrigins,
		},
		"publish": map[string]any{
			"endpoint":          c.Publish.Endpoint,
			"region":            c.Publish.Region,
			"bucket":            c.Publish.Bucket,
			"prefix":            c.Publish.Prefix,
			"access_key_id":     c.Publish.AccessKeyID,
			"secret_access_key": c.Publish.SecretAccessKey,
			"base_url":          c.Publish.BaseURL,
			"bundle_glob":       c.Publish.BundleGlob,
			"platform":          c.Publish.Platform,
			"version":           c.Publish.Version,
			"concurrency":       c.Publish.Concurrency,
		},
		"log": map[string]any{"debug": c.Log.Debug},
	}
	return yaml.Marshal(doc)
}

// WriteDefault writes the default configuration to path, refusing to replace
// an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("error writing config: %s already exists", path)
		}
	}
	data, err := NewDefaultConfig().YAML()
	if err != nil {
		return fmt.Errorf("error encoding config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing config: %v", err)
	}
	return nil
}

// DefaultPath is $HOME/.oglauncher.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %v", err)
	}
	return filepath.Join(home, FileName+".yaml"), nil
}
