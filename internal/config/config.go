package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can write timeouts in the
// usual Go form ("30s", "5m").
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	Scope   ScopeConfig   `yaml:"scope"`
	Server  ServerConfig  `yaml:"server"`
	Acquire AcquireConfig `yaml:"acquire"`
	Redis   RedisConfig   `yaml:"redis"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ScopeConfig names the instrument and tunes the VISA session.
type ScopeConfig struct {
	Resource      string   `yaml:"resource"`
	Resources     []string `yaml:"resources,omitempty"`
	DialTimeout   Duration `yaml:"dial_timeout"`
	ReadTimeout   Duration `yaml:"read_timeout"`
	WriteTimeout  Duration `yaml:"write_timeout"`
	KeepAlive     Duration `yaml:"keep_alive"`
	CapturePoints int      `yaml:"capture_points"`
}

// ServerConfig tunes the TCP command gateway.
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxConnections int      `yaml:"max_connections"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
}

// AcquireConfig tunes the polling acquisition loop.
type AcquireConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	Sources  []string `yaml:"sources"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	Channel   string `yaml:"channel"`
	Retention int64  `yaml:"retention"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// LoadConfig reads and parses a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &config, nil
}

// GetDefaultConfig returns the configuration used when no file is given.
func GetDefaultConfig() *Config {
	return &Config{
		Scope: ScopeConfig{
			Resource:      "TCPIP0::192.168.0.17::5025::SOCKET",
			DialTimeout:   Duration(5 * time.Second),
			ReadTimeout:   Duration(10 * time.Second),
			WriteTimeout:  Duration(5 * time.Second),
			KeepAlive:     Duration(30 * time.Second),
			CapturePoints: 10240,
		},
		Server: ServerConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8888,
			MaxConnections: 16,
			ReadTimeout:    Duration(5 * time.Minute),
			WriteTimeout:   Duration(30 * time.Second),
		},
		Acquire: AcquireConfig{
			Enabled:  false,
			Interval: Duration(10 * time.Second),
			Sources:  []string{"channel1"},
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			Channel:   "scope_captures",
			Retention: 1000,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "scoped",
			Topic:    "scope/captures",
			QoS:      0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPort: 9090,
		},
	}
}

// ResourceList merges the single-resource and list forms of the scope
// section, deduplicating while keeping order.
func (c *Config) ResourceList() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	add(c.Scope.Resource)
	for _, r := range c.Scope.Resources {
		add(r)
	}
	return out
}
