package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cilia/pkg/oauth"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CILIA"

// MaxCookieTTL caps the lifetime of the OAuth flow cookies
const MaxCookieTTL = 10 * time.Minute

// DefaultAllowedImageHosts are the provider media CDN hosts and the provider's own domains
var DefaultAllowedImageHosts = []string{"pbs.twimg.com", "abs.twimg.com", "twitter.com", "x.com"}

// Config holds the service configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Twitter TwitterConfig `mapstructure:"twitter"`
	Cookie  CookieConfig  `mapstructure:"cookie"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	BaseURL        string        `mapstructure:"base_url"` // e.g. https://cilia.example.com
	TLSCertFile    string        `mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `mapstructure:"tls_key_file"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// TLSEnabled reports whether both certificate and key are configured
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

type TwitterConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	PKCEMethod   string `mapstructure:"pkce_method"`
}

type CookieConfig struct {
	Secure bool          `mapstructure:"secure"`
	TTL    time.Duration `mapstructure:"ttl"`
	Secret string        `mapstructure:"secret"`
}

type ProxyConfig struct {
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	MaxBytes     int64    `mapstructure:"max_bytes"`
	UserAgent    string   `mapstructure:"user_agent"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Options selects where configuration is read from besides defaults and environment
type Options struct {
	// File is an explicit YAML config file. When empty, cilia.yaml is searched
	// for in the working directory and /etc/cilia and skipped if absent.
	File  string
	Flags *pflag.FlagSet
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"listen-addr": "server.listen_addr",
	"base-url":    "server.base_url",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
}

var secretKeys = []string{"twitter.client_secret", "cookie.secret"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("twitter.client_id", "")
	v.SetDefault("twitter.client_secret", "")
	v.SetDefault("twitter.redirect_uri", "")
	v.SetDefault("twitter.pkce_method", string(oauth.PKCEMethodS256))

	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.ttl", "10m")
	v.SetDefault("cookie.secret", "")

	v.SetDefault("proxy.allowed_hosts", DefaultAllowedImageHosts)
	v.SetDefault("proxy.max_bytes", 5<<20)
	v.SetDefault("proxy.user_agent", "Mozilla/5.0 (compatible; CiliaAI/1.0)")

	v.SetDefault("http.timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func newViper(opts Options) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The unprefixed names are what the hosting platform already exports
	for key, legacy := range map[string]string{
		"twitter.client_id":     "TWITTER_CLIENT_ID",
		"twitter.client_secret": "TWITTER_CLIENT_SECRET",
		"twitter.redirect_uri":  "TWITTER_REDIRECT_URI",
	} {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, err
		}
	}

	if opts.Flags != nil {
		for flag, key := range flagKeys {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.File, err)
		}
		return v, nil
	}

	v.SetConfigName("cilia")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/cilia")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

// Load reads defaults, an optional YAML file, CILIA_* environment variables
// and flags (highest precedence), then validates the result
func Load(opts Options) (*Config, error) {
	v, err := newViper(opts)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Dump renders the effective settings as YAML with secrets redacted
func Dump(opts Options) ([]byte, error) {
	v, err := newViper(opts)
	if err != nil {
		return nil, err
	}
	for _, key := range secretKeys {
		if v.GetString(key) != "" {
			v.Set(key, "REDACTED")
		}
	}
	return yaml.Marshal(v.AllSettings())
}

func (c *Config) normalize() {
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Twitter.RedirectURI == "" && c.Server.BaseURL != "" {
		c.Twitter.RedirectURI = c.Server.BaseURL + "/api/auth/callback"
	}
	c.Server.AllowedOrigins = trimList(c.Server.AllowedOrigins)
	c.Proxy.AllowedHosts = trimList(c.Proxy.AllowedHosts)
	for i, h := range c.Proxy.AllowedHosts {
		c.Proxy.AllowedHosts[i] = strings.ToLower(h)
	}
}

// Validate checks the configuration for values the service cannot run with.
// A missing client id is deliberately not an error: the initiator reports it per request.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url is invalid: %w", err)
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Twitter.RedirectURI != "" {
		if _, err := url.ParseRequestURI(c.Twitter.RedirectURI); err != nil {
			return fmt.Errorf("twitter.redirect_uri is invalid: %w", err)
		}
	}
	if _, err := oauth.ParsePKCEMethod(c.Twitter.PKCEMethod); err != nil {
		return fmt.Errorf("twitter.pkce_method: %w", err)
	}
	if c.Cookie.TTL <= 0 || c.Cookie.TTL > MaxCookieTTL {
		return fmt.Errorf("cookie.ttl must be in (0, %s], got %s", MaxCookieTTL, c.Cookie.TTL)
	}
	if c.Cookie.Secret != "" && len(c.Cookie.Secret) < 32 {
		return errors.New("cookie.secret must be at least 32 bytes")
	}
	if len(c.Proxy.AllowedHosts) == 0 {
		return errors.New("proxy.allowed_hosts cannot be empty")
	}
	if c.Proxy.MaxBytes <= 0 {
		return errors.New("proxy.max_bytes must be positive")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	return nil
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
