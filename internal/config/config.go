// Package config loads the settings of the dispatcher, node and store
// binaries.
//
// Every value has a default. A TOML file, when given, overrides the
// defaults, and RINGCACHE_* environment variables override the file:
//
//	defaults  <  -config file.toml  <  RINGCACHE_LISTEN_ADDR=... etc.
//
// Durations are written as Go duration strings ("5s", "250ms").
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment override, e.g. RINGCACHE_CAPACITY.
const EnvPrefix = "RINGCACHE_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration that decodes from a string such as "5s".
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration { return Duration{d} }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "0" || s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Dispatcher configures cmd/dispatcher.
type Dispatcher struct {
	ListenAddr       string   `toml:"listen_addr"`
	AnnounceAddr     string   `toml:"announce_addr"`
	HealthInterval   Duration `toml:"health_interval"`
	ProbeTimeout     Duration `toml:"probe_timeout"`
	ForwardTimeout   Duration `toml:"forward_timeout"`
	ClientTimeout    Duration `toml:"client_timeout"`
	FailureThreshold int      `toml:"failure_threshold"`
	MaxNodes         int      `toml:"max_nodes"`
	MaxConnections   int      `toml:"max_connections"`
	ProbeConcurrency int      `toml:"probe_concurrency"`
	MetricsAddr      string   `toml:"metrics_addr"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
}

// DefaultDispatcher returns the dispatcher defaults: client port 9090,
// announcements on 9091, a five second health interval and ten ring slots.
func DefaultDispatcher() Dispatcher {
	return Dispatcher{
		ListenAddr:       ":9090",
		AnnounceAddr:     ":9091",
		HealthInterval:   D(5 * time.Second),
		ProbeTimeout:     D(time.Second),
		ForwardTimeout:   D(2 * time.Second),
		ClientTimeout:    D(10 * time.Second),
		FailureThreshold: 1,
		MaxNodes:         10,
		MaxConnections:   256,
		ProbeConcurrency: 8,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Validate reports the first unusable setting.
func (c Dispatcher) Validate() error {
	switch {
	case c.ListenAddr == "":
		return invalid("listen_addr", "must not be empty")
	case c.AnnounceAddr == "":
		return invalid("announce_addr", "must not be empty")
	case c.HealthInterval.Duration <= 0:
		return invalid("health_interval", "must be positive")
	case c.ProbeTimeout.Duration <= 0:
		return invalid("probe_timeout", "must be positive")
	case c.ForwardTimeout.Duration <= 0:
		return invalid("forward_timeout", "must be positive")
	case c.ClientTimeout.Duration < 0:
		return invalid("client_timeout", "must not be negative")
	case c.FailureThreshold < 1:
		return invalid("failure_threshold", "must be at least 1")
	case c.MaxNodes < 1:
		return invalid("max_nodes", "must be at least 1")
	case c.MaxConnections < 0:
		return invalid("max_connections", "must not be negative")
	case c.ProbeConcurrency < 1:
		return invalid("probe_concurrency", "must be at least 1")
	}
	return nil
}

func (c *Dispatcher) fields() map[string]any {
	return map[string]any{
		"LISTEN_ADDR":       &c.ListenAddr,
		"ANNOUNCE_ADDR":     &c.AnnounceAddr,
		"HEALTH_INTERVAL":   &c.HealthInterval,
		"PROBE_TIMEOUT":     &c.ProbeTimeout,
		"FORWARD_TIMEOUT":   &c.ForwardTimeout,
		"CLIENT_TIMEOUT":    &c.ClientTimeout,
		"FAILURE_THRESHOLD": &c.FailureThreshold,
		"MAX_NODES":         &c.MaxNodes,
		"MAX_CONNECTIONS":   &c.MaxConnections,
		"PROBE_CONCURRENCY": &c.ProbeConcurrency,
		"METRICS_ADDR":      &c.MetricsAddr,
		"LOG_LEVEL":         &c.LogLevel,
		"LOG_FORMAT":        &c.LogFormat,
	}
}

// Node configures cmd/node.
type Node struct {
	ListenAddr             string   `toml:"listen_addr"`
	PublicAddr             string   `toml:"public_addr"`
	DispatcherAnnounceAddr string   `toml:"dispatcher_announce_addr"`
	AnnounceInterval       Duration `toml:"announce_interval"`
	Capacity               int      `toml:"capacity"`
	IdleTimeout            Duration `toml:"idle_timeout"`
	MaxConnections         int      `toml:"max_connections"`
	BackingStoreAddr       string   `toml:"backing_store_addr"`
	BackingStoreTimeout    Duration `toml:"backing_store_timeout"`
	WriteThrough           bool     `toml:"write_through"`
	FillTTL                Duration `toml:"fill_ttl"`
	MetricsAddr            string   `toml:"metrics_addr"`
	LogLevel               string   `toml:"log_level"`
	LogFormat              string   `toml:"log_format"`
}

// DefaultNode returns the node defaults. A capacity of three matches the
// smallest useful LRU; production deployments raise it. Nodes re-announce
// every health interval so one removed by a failed probe rejoins; set
// announce_interval to "0" to announce only at startup.
func DefaultNode() Node {
	return Node{
		ListenAddr:             ":8080",
		PublicAddr:             "127.0.0.1:8080",
		DispatcherAnnounceAddr: "127.0.0.1:9091",
		AnnounceInterval:       D(5 * time.Second),
		Capacity:               3,
		IdleTimeout:            D(30 * time.Second),
		MaxConnections:         256,
		BackingStoreTimeout:    D(2 * time.Second),
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// WithPort rewrites the port of both the listen and public addresses.
func (c Node) WithPort(port int) (Node, error) {
	if port <= 0 || port > 65535 {
		return c, invalid("port", fmt.Sprintf("%d out of range", port))
	}
	p := strconv.Itoa(port)
	listenHost, _, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return c, invalid("listen_addr", err.Error())
	}
	publicHost, _, err := net.SplitHostPort(c.PublicAddr)
	if err != nil {
		return c, invalid("public_addr", err.Error())
	}
	c.ListenAddr = net.JoinHostPort(listenHost, p)
	c.PublicAddr = net.JoinHostPort(publicHost, p)
	return c, nil
}

// Validate reports the first unusable setting.
func (c Node) Validate() error {
	if c.ListenAddr == "" {
		return invalid("listen_addr", "must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.PublicAddr); err != nil {
		return invalid("public_addr", err.Error())
	}
	switch {
	case c.DispatcherAnnounceAddr == "":
		return invalid("dispatcher_announce_addr", "must not be empty")
	case c.AnnounceInterval.Duration < 0:
		return invalid("announce_interval", "must not be negative")
	case c.Capacity < 1:
		return invalid("capacity", "must be at least 1")
	case c.IdleTimeout.Duration < 0:
		return invalid("idle_timeout", "must not be negative")
	case c.MaxConnections < 0:
		return invalid("max_connections", "must not be negative")
	case c.BackingStoreAddr != "" && c.BackingStoreTimeout.Duration <= 0:
		return invalid("backing_store_timeout", "must be positive")
	case c.WriteThrough && c.BackingStoreAddr == "":
		return invalid("write_through", "requires backing_store_addr")
	case c.FillTTL.Duration < 0:
		return invalid("fill_ttl", "must not be negative")
	}
	return nil
}

func (c *Node) fields() map[string]any {
	return map[string]any{
		"LISTEN_ADDR":              &c.ListenAddr,
		"PUBLIC_ADDR":              &c.PublicAddr,
		"DISPATCHER_ANNOUNCE_ADDR": &c.DispatcherAnnounceAddr,
		"ANNOUNCE_INTERVAL":        &c.AnnounceInterval,
		"CAPACITY":                 &c.Capacity,
		"IDLE_TIMEOUT":             &c.IdleTimeout,
		"MAX_CONNECTIONS":          &c.MaxConnections,
		"BACKING_STORE_ADDR":       &c.BackingStoreAddr,
		"BACKING_STORE_TIMEOUT":    &c.BackingStoreTimeout,
		"WRITE_THROUGH":            &c.WriteThrough,
		"FILL_TTL":                 &c.FillTTL,
		"METRICS_ADDR":             &c.MetricsAddr,
		"LOG_LEVEL":                &c.LogLevel,
		"LOG_FORMAT":               &c.LogFormat,
	}
}

// Store configures cmd/store.
type Store struct {
	ListenAddr     string   `toml:"listen_addr"`
	Seed           int      `toml:"seed"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	MaxConnections int      `toml:"max_connections"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
}

// DefaultStore returns the store defaults: port 9092 seeded with ten keys.
func DefaultStore() Store {
	return Store{
		ListenAddr:     ":9092",
		Seed:           10,
		IdleTimeout:    D(30 * time.Second),
		MaxConnections: 256,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate reports the first unusable setting.
func (c Store) Validate() error {
	switch {
	case c.ListenAddr == "":
		return invalid("listen_addr", "must not be empty")
	case c.Seed < 0:
		return invalid("seed", "must not be negative")
	case c.IdleTimeout.Duration < 0:
		return invalid("idle_timeout", "must not be negative")
	case c.MaxConnections < 0:
		return invalid("max_connections", "must not be negative")
	}
	return nil
}

func (c *Store) fields() map[string]any {
	return map[string]any{
		"LISTEN_ADDR":     &c.ListenAddr,
		"SEED":            &c.Seed,
		"IDLE_TIMEOUT":    &c.IdleTimeout,
		"MAX_CONNECTIONS": &c.MaxConnections,
		"LOG_LEVEL":       &c.LogLevel,
		"LOG_FORMAT":      &c.LogFormat,
	}
}

// LoadDispatcher layers path (optional) and the environment over the
// defaults and validates the result.
func LoadDispatcher(path string) (Dispatcher, error) {
	cfg := DefaultDispatcher()
	if err := load(path, &cfg, cfg.fields()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadNode layers path (optional) and the environment over the defaults
// and validates the result.
func LoadNode(path string) (Node, error) {
	cfg := DefaultNode()
	if err := load(path, &cfg, cfg.fields()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadStore layers path (optional) and the environment over the defaults
// and validates the result.
func LoadStore(path string) (Store, error) {
	cfg := DefaultStore()
	if err := load(path, &cfg, cfg.fields()); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func load(path string, cfg any, fields map[string]any) error {
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("%w: %s: unknown keys %s", ErrInvalid, path, strings.Join(keys, ", "))
		}
	}
	return applyEnv(fields)
}

// applyEnv overwrites each field whose RINGCACHE_<NAME> variable is set.
func applyEnv(fields map[string]any) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := EnvPrefix + name
		v := getenv(key, "")
		if v == "" {
			continue
		}
		switch p := fields[name].(type) {
		case *string:
			*p = v
		case *int:
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q: not an integer", ErrInvalid, key, v)
			}
			*p = n
		case *bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q: not a boolean", ErrInvalid, key, v)
			}
			*p = b
		case *Duration:
			if err := p.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, key, v, err)
			}
		default:
			return fmt.Errorf("config: unsupported field type %T for %s", p, key)
		}
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalid, field, reason)
}
