// Package config defines the tscached configuration surface (spec §6) and
// follows the teacher's RegisterFlagsAndApplyDefaults idiom
// (cmd/tempo/app/config.go, cmd/tempo-federated-querier/config.go): every
// sub-config registers its own flags under a prefix and applies its own
// defaults, and the root Config composes them.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// KairosDBConfig points at the upstream TSDB.
type KairosDBConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c *KairosDBConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Host, prefix+"kairosdb.host", "localhost", "KairosDB host.")
	f.IntVar(&c.Port, prefix+"kairosdb.port", 8080, "KairosDB port.")
}

// RedisConfig points at the shared KV-store.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c *RedisConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Host, prefix+"redis.host", "localhost", "Redis host.")
	f.IntVar(&c.Port, prefix+"redis.port", 6379, "Redis port.")
}

// Addr returns the host:port dial address for go-redis.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DataConfig tunes cache-coherence behavior (spec §4.1, §4.4).
type DataConfig struct {
	StalenessThreshold  time.Duration `yaml:"staleness_threshold"`
	ExpectedResolutionMs int64        `yaml:"expected_resolution"`
}

func (c *DataConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.StalenessThreshold, prefix+"data.staleness-threshold", 10*time.Second, "How stale a HOT query's tail may be before it's refreshed.")
	f.Int64Var(&c.ExpectedResolutionMs, prefix+"data.expected-resolution", 10000, "Expected sample spacing in milliseconds, used by efficient_trim and the warm-path boundary nudge.")
}

// ChunkingConfig tunes the COLD-path chunked parallel fetch (spec §4.1).
type ChunkingConfig struct {
	ChunkLength time.Duration `yaml:"chunk_length"`
}

func (c *ChunkingConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.ChunkLength, prefix+"chunking.chunk-length", 30*time.Minute, "Width of each parallel COLD-path backend fetch.")
}

// ShadowConfig tunes the read-ahead worker (spec §4.7).
type ShadowConfig struct {
	HTTPHeaderName    string        `yaml:"http_header_name"`
	ReferrerBlacklist []string      `yaml:"referrer_blacklist"`
	LeaderExpiration  time.Duration `yaml:"leader_expiration"`
}

func (c *ShadowConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.HTTPHeaderName, prefix+"shadow.http-header-name", "X-tscached-readahead", "Opt-in header that forces a request's KQuery into the read-ahead set.")
	f.DurationVar(&c.LeaderExpiration, prefix+"shadow.leader-expiration", 120*time.Second, "TTL of the distributed read-ahead leader lock.")
}

// ExpiryConfig sets per-endpoint TTLs for the metadata passthrough caches
// (spec §6).
type ExpiryConfig struct {
	MetricNames time.Duration `yaml:"metricnames"`
	TagNames    time.Duration `yaml:"tagnames"`
	TagValues   time.Duration `yaml:"tagvalues"`
	MetaQuery   time.Duration `yaml:"metaquery"`
}

func (c *ExpiryConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.MetricNames, prefix+"expiry.metricnames", 5*time.Minute, "TTL for the cached /api/v1/metricnames response.")
	f.DurationVar(&c.TagNames, prefix+"expiry.tagnames", 5*time.Minute, "TTL for the cached /api/v1/tagnames response.")
	f.DurationVar(&c.TagValues, prefix+"expiry.tagvalues", 5*time.Minute, "TTL for the cached /api/v1/tagvalues response.")
	f.DurationVar(&c.MetaQuery, prefix+"expiry.metaquery", 5*time.Minute, "TTL for the cached /api/v1/datapoints/query/tags response.")
}

// ServerConfig is the HTTP listen configuration.
type ServerConfig struct {
	HTTPListenAddress string `yaml:"http_listen_address"`
	HTTPListenPort    int    `yaml:"http_listen_port"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`
}

func (c *ServerConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, prefix+"server.http-listen-address", "0.0.0.0", "HTTP server listen address.")
	f.IntVar(&c.HTTPListenPort, prefix+"server.http-listen-port", 8888, "HTTP server listen port.")
	f.StringVar(&c.LogLevel, prefix+"server.log-level", "info", "Log level: debug, info, warn, error.")
	f.StringVar(&c.LogFormat, prefix+"server.log-format", "logfmt", "Log format: logfmt, json.")
}

// Config is the root tscached config (spec §6, "tscached" root document).
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	KairosDB  KairosDBConfig `yaml:"kairosdb"`
	Redis     RedisConfig    `yaml:"redis"`
	Data      DataConfig     `yaml:"data"`
	Chunking  ChunkingConfig `yaml:"chunking"`
	Shadow    ShadowConfig   `yaml:"shadow"`
	Expiry    ExpiryConfig   `yaml:"expiry"`
}

// RegisterFlagsAndApplyDefaults wires every sub-config's flags under prefix
// and applies their defaults, the same composition the teacher's root
// Config.RegisterFlagsAndApplyDefaults uses for its own nested configs.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Server.RegisterFlagsAndApplyDefaults(prefix, f)
	c.KairosDB.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Redis.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Data.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Chunking.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Shadow.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Expiry.RegisterFlagsAndApplyDefaults(prefix, f)
}

// NewDefaultConfig returns a Config with every flag default applied and no
// YAML overlay, following NewDefaultConfig in cmd/tempo/app/config.go.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	fs := flag.NewFlagSet("", flag.PanicOnError)
	cfg.RegisterFlagsAndApplyDefaults("", fs)
	return cfg
}

// outerDocument mirrors the on-disk shape: a single "tscached" root key
// wrapping the Config fields (spec §6).
type outerDocument struct {
	TSCached Config `yaml:"tscached"`
}

// LoadFromFile applies flag defaults, then overlays YAML from path under
// the "tscached" root key: any field the YAML document sets wins over the
// flag default, any field it omits keeps the default. CLI flag overrides
// on top of a loaded file are intentionally out of scope here; the two
// binaries (cmd/tscached, cmd/tscached-shadow) only take "-config.file".
func LoadFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	doc := outerDocument{TSCached: *cfg}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	*cfg = doc.TSCached
	return cfg, nil
}
