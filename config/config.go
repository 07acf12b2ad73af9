// Package config provides configuration for client apps based on the SDK.
package config // import "github.com/btcturk-go/btcturk-go/config"

import (
	"fmt"
	"io/ioutil"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"

	"github.com/btcturk-go/btcturk-go/common"
)

// Defaults used if the corresponding field isn't specified.
const (
	DefaultAPIURL         = "https://api.btcturk.com/api"
	DefaultStreamURL      = "wss://ws-feed-pro.btcturk.com"
	DefaultReconnectDelay = "5s"
	DefaultMaxRetries     = 3

	Filepath = ".btcturk/credentials.yml"
)

// Various validation errors.
var (
	ErrNilConfig         = Error{Type: "config", Why: "config is nil", How: "create and load config first"}
	ErrEmptyAPIKey       = Error{Type: "config", What: "api_key", Why: "is empty", How: "specify an api_key"}
	ErrEmptySecretKey    = Error{Type: "config", What: "secret_key", Why: "is empty", How: "specify a secret_key"}
	ErrInvalidSecretKey  = Error{Type: "config", What: "secret_key", Why: "is not base64", How: "copy the private key exactly as the exchange shows it"}
	ErrInvalidHTTPURL    = Error{Type: "config", What: "api_url", Why: "wrong url", How: "URL must be a valid http or https url"}
	ErrInvalidWSURL      = Error{Type: "config", What: "stream_url", Why: "wrong url", How: "URL must be a valid ws or wss url"}
	ErrInvalidScheme     = Error{Type: "config", Why: "invalid scheme", How: "scheme must be http(s) or ws(s)"}
	ErrInvalidDelay      = Error{Type: "config", What: "reconnect_delay", Why: "is not a positive duration", How: `use a value like "5s" or "1m"`}
	ErrInvalidMaxRetries = Error{Type: "config", What: "max_retries", Why: "is negative", How: "use 0 to disable retrying"}
	ErrInvalidRate       = Error{Type: "config", What: "requests_per_second", Why: "is negative", How: "use 0 to send requests without pacing"}
)

// Config holds the configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"` // protects the fields below

	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	APIURL    string `yaml:"api_url"`
	StreamURL string `yaml:"stream_url"`

	// ReconnectDelay is a duration string, e.g. "5s".
	ReconnectDelay string `yaml:"reconnect_delay"`
	// MaxRetries bounds re-issuing of rate-limited REST requests; nil means
	// DefaultMaxRetries.
	MaxRetries *int `yaml:"max_retries,omitempty"`
	// RequestsPerSecond paces REST requests on the client side; 0 means no
	// pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// New creates a new Config from a file by the given name.
func New(name string) (*Config, error) {
	return NewFromFilename(name)
}

// NewFromFilename creates a new Config from a file by the given filename.
func NewFromFilename(filename string) (*Config, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return NewFromRaw(data)
}

// NewFromRaw creates a new Config by unmarshaling the given raw data.
func NewFromRaw(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Trace(err)
	}

	return cfg, nil
}

// ValidateFunc validates the config by applying each of given vfs to it.
func (c *Config) ValidateFunc(vfs ...ValidateFuncConfig) error {
	if c == nil {
		return ErrNilConfig
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range vfs {
		if err := f(c); err != nil {
			return errors.Trace(err)
		}
	}

	return nil
}

// Validate validates the config by applying ValidateCredentials and
// ValidateConnection.
func (c *Config) Validate() error {
	return c.ValidateFunc(ValidateCredentials, ValidateConnection)
}

// ValidatePublic validates the config of a client which only uses public
// data: credentials may be omitted.
func (c *Config) ValidatePublic() error {
	return c.ValidateFunc(ValidateConnection)
}

// Credentials returns the API key pair, or nil if no api_key is set.
func (c *Config) Credentials() *common.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.APIKey == "" {
		return nil
	}

	return &common.Credentials{
		PublicKey:  c.APIKey,
		PrivateKey: c.SecretKey,
	}
}

// ReconnectTimeout returns ReconnectDelay as a duration; the config is
// expected to be validated.
func (c *Config) ReconnectTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := time.ParseDuration(c.ReconnectDelay)
	if err != nil {
		d, _ = time.ParseDuration(DefaultReconnectDelay)
	}

	return d
}

// Retries returns MaxRetries, or DefaultMaxRetries if it's not set.
func (c *Config) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}

	return *c.MaxRetries
}

// RateLimiter returns a limiter pacing REST requests at RequestsPerSecond,
// or nil if pacing is off.
func (c *Config) RateLimiter() *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.RequestsPerSecond <= 0 {
		return nil
	}

	burst := int(math.Ceil(c.RequestsPerSecond))
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
}

func (c *Config) Example() *Config {
	cfg := &Config{}

	cfg.APIKey = "example_api_key"
	cfg.SecretKey = "ZXhhbXBsZV9zZWNyZXRfa2V5"
	cfg.APIURL = DefaultAPIURL
	cfg.StreamURL = DefaultStreamURL
	cfg.ReconnectDelay = DefaultReconnectDelay

	retries := DefaultMaxRetries
	cfg.MaxRetries = &retries
	cfg.RequestsPerSecond = 5

	return cfg
}

// String can't be defined on a value receiver here because of the mutex.
func (c *Config) String() string {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}

	return string(raw)
}

// DefaultFilepath determines and returns default config path.
// It can return an error if detecting the user's home directory has failed.
func DefaultFilepath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Trace(err)
	}

	return filepath.Join(home, Filepath), nil
}

// Error holds details about an error occurred during validation.
type Error struct {
	Type string
	What string
	Why  string
	How  string
}

func (e Error) Error() string {
	if e.What == "" {
		return fmt.Sprintf("invalid %s: %s. Possible fix: %s", e.Type, e.Why, e.How)
	}

	return fmt.Sprintf("invalid %s: %s - %s. Possible fix: %s", e.Type, e.What, e.Why, e.How)
}

// ValidateFuncConfig takes an instance of Config and returns an error if
// it's invalid. It may fill in defaults.
type ValidateFuncConfig func(*Config) error

// CheckURL checks that the url has the correct scheme.
func CheckURL(given string, schemes ...string) error {
	u, err := url.Parse(given)
	if err != nil {
		return errors.Trace(err)
	}

	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}

	return ErrInvalidScheme
}

// ValidateCredentials checks that both keys are present, and that the secret
// key can be used for signing.
func ValidateCredentials(c *Config) error {
	if c.APIKey == "" {
		return ErrEmptyAPIKey
	}

	if c.SecretKey == "" {
		return ErrEmptySecretKey
	}

	creds := common.Credentials{PublicKey: c.APIKey, PrivateKey: c.SecretKey}
	if _, err := creds.Sign(""); err != nil {
		return ErrInvalidSecretKey
	}

	return nil
}

// ValidateConnection checks URLs, the reconnect delay, the retry bound and
// the request rate, setting defaults for those which weren't specified.
func ValidateConnection(c *Config) error {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	} else if err := CheckURL(c.APIURL, "http", "https"); err != nil {
		return ErrInvalidHTTPURL
	}

	if c.StreamURL == "" {
		c.StreamURL = DefaultStreamURL
	} else if err := CheckURL(c.StreamURL, "ws", "wss"); err != nil {
		return ErrInvalidWSURL
	}

	if c.ReconnectDelay == "" {
		c.ReconnectDelay = DefaultReconnectDelay
	} else if d, err := time.ParseDuration(c.ReconnectDelay); err != nil || d <= 0 {
		return ErrInvalidDelay
	}

	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	return nil
}
