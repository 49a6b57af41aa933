package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
)

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendEtcd   = "etcd"
)

// Config holds runtime configuration for the liveness-indexer node.
type Config struct {
	LogLevel  string
	LogFormat string

	KeyFile    string
	RosterFile string

	// DataDir holds the pebble database; empty keeps everything in memory.
	DataDir       string
	StatusBackend string
	EtcdEndpoints []string
	NodeID        string

	ListenAddr    string
	Peers         []string
	SubmitTimeout time.Duration

	BeaconNodeURL  string
	BlockTime      time.Duration
	PollInterval   time.Duration
	SessionLength  domain.BlockNumber
	SessionsPerEra domain.SessionIndex

	MetricsAddr string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("status_backend", "")
	v.SetDefault("node_id", "node-0")
	v.SetDefault("submit_timeout_seconds", 5)
	v.SetDefault("block_time_seconds", 6)
	v.SetDefault("poll_interval_seconds", 1)
	v.SetDefault("session_length_blocks", 50)
	v.SetDefault("sessions_per_era", 6)
	v.SetDefault("metrics_addr", ":9100")
	return v
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(newViper())
}

// LoadFile reads configuration from a file; environment variables still win.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	keyFile := strings.TrimSpace(v.GetString("key_file"))
	if keyFile == "" {
		return nil, fmt.Errorf("KEY_FILE is required")
	}

	pollInterval, err := positiveSeconds(v, "poll_interval_seconds")
	if err != nil {
		return nil, err
	}
	blockTime, err := positiveSeconds(v, "block_time_seconds")
	if err != nil {
		return nil, err
	}
	submitTimeout, err := positiveSeconds(v, "submit_timeout_seconds")
	if err != nil {
		return nil, err
	}

	sessionLength := v.GetInt64("session_length_blocks")
	if sessionLength <= 0 {
		return nil, fmt.Errorf("invalid SESSION_LENGTH_BLOCKS: %q", v.GetString("session_length_blocks"))
	}
	sessionsPerEra := v.GetInt64("sessions_per_era")
	if sessionsPerEra <= 0 || sessionsPerEra > int64(^uint32(0)) {
		return nil, fmt.Errorf("invalid SESSIONS_PER_ERA: %q", v.GetString("sessions_per_era"))
	}

	dataDir := strings.TrimSpace(v.GetString("data_dir"))
	backend := strings.ToLower(strings.TrimSpace(v.GetString("status_backend")))
	if backend == "" {
		backend = BackendMemory
		if dataDir != "" {
			backend = BackendPebble
		}
	}
	etcdEndpoints := stringList(v, "etcd_endpoints")
	switch backend {
	case BackendMemory:
	case BackendPebble:
		if dataDir == "" {
			return nil, fmt.Errorf("STATUS_BACKEND=pebble requires DATA_DIR")
		}
	case BackendEtcd:
		if len(etcdEndpoints) == 0 {
			return nil, fmt.Errorf("STATUS_BACKEND=etcd requires ETCD_ENDPOINTS (e.g. \"127.0.0.1:2379\")")
		}
	default:
		return nil, fmt.Errorf("invalid STATUS_BACKEND: %q", backend)
	}

	return &Config{
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		KeyFile:        keyFile,
		RosterFile:     strings.TrimSpace(v.GetString("roster_file")),
		DataDir:        dataDir,
		StatusBackend:  backend,
		EtcdEndpoints:  etcdEndpoints,
		NodeID:         v.GetString("node_id"),
		ListenAddr:     strings.TrimSpace(v.GetString("listen_addr")),
		Peers:          stringList(v, "peers"),
		SubmitTimeout:  submitTimeout,
		BeaconNodeURL:  strings.TrimSpace(v.GetString("beacon_node_url")),
		BlockTime:      blockTime,
		PollInterval:   pollInterval,
		SessionLength:  domain.BlockNumber(sessionLength),
		SessionsPerEra: domain.SessionIndex(sessionsPerEra),
		MetricsAddr:    strings.TrimSpace(v.GetString("metrics_addr")),
	}, nil
}

func positiveSeconds(v *viper.Viper, key string) (time.Duration, error) {
	sec := v.GetInt(key)
	if sec <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), v.GetString(key))
	}
	return time.Duration(sec) * time.Second, nil
}

// stringList accepts a comma separated string (environment) or a list (config file).
func stringList(v *viper.Viper, key string) []string {
	var parts []string
	if raw, ok := v.Get(key).(string); ok {
		parts = strings.Split(raw, ",")
	} else {
		parts = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
