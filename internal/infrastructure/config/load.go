package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WebSocket keepalive used when the configured values are not positive.
const (
	DefaultPingInterval = 30
	DefaultPongTimeout  = 10
)

const envPrefix = "GRAYSWITCH_"

// Load reads the YAML file at path over the built-in defaults, applies
// GRAYSWITCH_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Site.ID = "site-001"
	cfg.Site.Name = "Gray Logic"

	cfg.Database.Path = "./data/grayswitch.db"
	cfg.Database.WALMode = true
	cfg.Database.BusyTimeout = 5
	cfg.Database.HistoryRetentionDays = 30

	cfg.MQTT.Broker = MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "grayswitch"}
	cfg.MQTT.QoS = 1
	cfg.MQTT.Reconnect = MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60}

	cfg.API = APIConfig{
		Enabled:  true,
		Host:     "0.0.0.0",
		Port:     8090,
		Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
	}
	cfg.WebSocket = WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
	}

	cfg.InfluxDB.BatchSize = 100
	cfg.InfluxDB.FlushInterval = 10
	cfg.Redis.Addr = "localhost:6379"

	cfg.Logging = LoggingConfig{Level: "info", Format: "json", Output: "stdout"}
	return cfg
}

// applyEnvOverrides copies non-empty GRAYSWITCH_<KEY> variables over cfg.
// Numeric keys that do not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		key string
		dst any
	}{
		{"DATABASE_PATH", &cfg.Database.Path},
		{"MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"MQTT_PORT", &cfg.MQTT.Broker.Port},
		{"MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"API_HOST", &cfg.API.Host},
		{"API_PORT", &cfg.API.Port},
		{"INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"LOG_LEVEL", &cfg.Logging.Level},
	}

	for _, o := range overrides {
		v := os.Getenv(envPrefix + o.key)
		if v == "" {
			continue
		}
		switch dst := o.dst.(type) {
		case *string:
			*dst = v
		case *int:
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

// Validate reports every structural error at once.
//
// Switch entries are checked only for what the file itself can get wrong:
// QoS range and id clashes, where an entry without id is keyed by the slug
// of its name. A missing command_topic is the bridge's to report.
func (c *Config) Validate() error {
	var errs []string
	check := func(bad bool, msg string, args ...any) {
		if bad {
			errs = append(errs, fmt.Sprintf(msg, args...))
		}
	}

	check(c.Site.ID == "", "site.id is required")
	check(c.Database.Path == "", "database.path is required")
	check(c.Database.HistoryRetentionDays < 0, "database.history_retention_days must not be negative")
	check(!validQoS(c.MQTT.QoS), "mqtt.qos must be 0, 1, or 2")
	check(c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535), "api.port must be between 1 and 65535")
	check(c.InfluxDB.Enabled && c.InfluxDB.URL == "", "influxdb.url is required when influxdb is enabled")
	check(c.Redis.Enabled && c.Redis.Addr == "", "redis.addr is required when redis is enabled")

	seen := make(map[string]int, len(c.Switches))
	for i, sw := range c.Switches {
		check(!validQoS(sw.QoS), "switches[%d].qos must be 0, 1, or 2", i)

		id := sw.EffectiveID()
		if id == "" {
			check(true, "switches[%d] needs an id: name %q has no usable characters", i, sw.Name)
			continue
		}
		if prev, dup := seen[id]; dup {
			check(true, "switches[%d].id %q duplicates switches[%d]", i, id, prev)
			continue
		}
		seen[id] = i
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validQoS(q int) bool { return q >= 0 && q <= 2 }
