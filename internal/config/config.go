package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version   int          `yaml:"version"`
	Global    GlobalConfig `yaml:"global"`
	TypedData TypedData    `yaml:"typed_data"`
	ABIPath   string       `yaml:"abi_path"`
	Cache     CacheConfig  `yaml:"cache"`
	HTTP      HTTPConfig   `yaml:"http"`
	Chains    []Chain      `yaml:"chains"`
	Sinks     []Sink       `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath        string `yaml:"db_path"`
	Listen        string `yaml:"listen"`
	RPCTimeout    string `yaml:"rpc_timeout"`
	RPCRetries    *int   `yaml:"rpc_retries"`
	RPCBackoff    string `yaml:"rpc_backoff"`
	StateCacheTTL string `yaml:"state_cache_ttl"`
}

// TypedData names the EIP-712 domain wallets sign evidence under.
type TypedData struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CacheConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type HTTPConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
	// TrustProxy honours X-Real-IP/X-Forwarded-For for client identity.
	TrustProxy bool `yaml:"trust_proxy"`
}

type Chain struct {
	ID                int64   `yaml:"id"`
	Name              string  `yaml:"name"`
	RPCURL            string  `yaml:"rpc_url"`
	Contract          string  `yaml:"contract"`
	NativeSymbol      string  `yaml:"native_symbol"`
	NativeDecimals    *uint8  `yaml:"native_decimals"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	// Match limits the sink to events satisfying every expression.
	Match []string `yaml:"match"`
}

const (
	DefaultListen        = ":8080"
	DefaultRPCTimeout    = 10 * time.Second
	DefaultRPCRetries    = 2
	DefaultRPCBackoff    = 250 * time.Millisecond
	DefaultStateCacheTTL = 20 * time.Second
	MaxStateCacheTTL     = 60 * time.Second
	DefaultDecimals      = 18
)

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Validate performs small, direct schema checks and fills defaults.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.HTTP.RequestsPerMinute < 0 || c.HTTP.Burst < 0 {
		return errors.New("http: requests_per_minute and burst must not be negative")
	}
	if len(c.Chains) == 0 {
		return errors.New("at least one chain is required")
	}

	chainIDs := map[int64]struct{}{}
	for i := range c.Chains {
		ch := &c.Chains[i]
		if _, exists := chainIDs[ch.ID]; exists {
			return fmt.Errorf("duplicate chain id: %d", ch.ID)
		}
		chainIDs[ch.ID] = struct{}{}
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("chain %d: %w", ch.ID, err)
		}
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return nil
}

func (g *GlobalConfig) Validate() error {
	if g.DBPath == "" {
		return errors.New("db_path is required")
	}
	if g.Listen == "" {
		g.Listen = DefaultListen
	}
	if g.RPCRetries != nil && *g.RPCRetries < 0 {
		return errors.New("rpc_retries must not be negative")
	}
	for name, v := range map[string]string{
		"rpc_timeout":     g.RPCTimeout,
		"rpc_backoff":     g.RPCBackoff,
		"state_cache_ttl": g.StateCacheTTL,
	} {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if ttl := g.CacheTTL(); ttl > MaxStateCacheTTL {
		return fmt.Errorf("state_cache_ttl %s exceeds %s", ttl, MaxStateCacheTTL)
	}
	return nil
}

// Timeout is the per-call RPC bound.
func (g GlobalConfig) Timeout() time.Duration {
	return durationOr(g.RPCTimeout, DefaultRPCTimeout)
}

// Retries is how many times a failed chain read is retried.
func (g GlobalConfig) Retries() int {
	if g.RPCRetries == nil {
		return DefaultRPCRetries
	}
	return *g.RPCRetries
}

func (g GlobalConfig) Backoff() time.Duration {
	return durationOr(g.RPCBackoff, DefaultRPCBackoff)
}

// CacheTTL is how long a contract state read may be served from cache.
func (g GlobalConfig) CacheTTL() time.Duration {
	return durationOr(g.StateCacheTTL, DefaultStateCacheTTL)
}

func (c *CacheConfig) Validate() error {
	c.Backend = strings.ToLower(c.Backend)
	switch c.Backend {
	case "", "memory":
		c.Backend = "memory"
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for redis cache")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Backend)
	}
	return nil
}

func (ch *Chain) Validate() error {
	if ch.ID <= 0 {
		return errors.New("id must be positive")
	}
	if ch.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if u, err := url.Parse(ch.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid rpc_url %q", ch.RPCURL)
	}
	if !common.IsHexAddress(ch.Contract) {
		return fmt.Errorf("invalid contract address %q", ch.Contract)
	}
	if common.HexToAddress(ch.Contract) == (common.Address{}) {
		return errors.New("contract address is the zero address; deploy the contract or drop the chain")
	}
	if ch.NativeSymbol == "" {
		return errors.New("native_symbol is required")
	}
	if ch.NativeDecimals == nil {
		d := uint8(DefaultDecimals)
		ch.NativeDecimals = &d
	}
	if ch.RequestsPerSecond < 0 {
		return errors.New("requests_per_second must not be negative")
	}
	if ch.Name == "" {
		ch.Name = fmt.Sprintf("chain-%d", ch.ID)
	}
	return nil
}

// Decimals returns the native currency decimals after defaults are applied.
func (ch Chain) Decimals() uint8 {
	if ch.NativeDecimals == nil {
		return DefaultDecimals
	}
	return *ch.NativeDecimals
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func durationOr(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
