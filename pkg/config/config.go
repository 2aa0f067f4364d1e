package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Configuration
	HTTPAddr string `yaml:"http_addr"`

	// Storage backend: "clickhouse" or "sqlite"
	StorageBackend string `yaml:"storage_backend"`

	// ClickHouse Configuration
	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ClickHouseDB   string `yaml:"clickhouse_db"`
	ClickHouseUser string `yaml:"clickhouse_user"`
	ClickHousePass string `yaml:"clickhouse_pass"`

	// SQLite Configuration (local development)
	SQLitePath string `yaml:"sqlite_path"`

	// MQTT Configuration
	MQTTBroker       string `yaml:"mqtt_broker"`
	MQTTClientID     string `yaml:"mqtt_client_id"`
	MQTTUsername     string `yaml:"mqtt_username"`
	MQTTPassword     string `yaml:"mqtt_password"`
	MQTTTopicChanges string `yaml:"mqtt_topic_changes"`

	// Redis Configuration (empty address disables the shared cache tier)
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Cache Configuration
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Time zones
	ReportingTimezone string `yaml:"reporting_timezone"`
	DisplayTimezone   string `yaml:"display_timezone"`

	// Seed tool
	SeedInterval time.Duration `yaml:"seed_interval"`
}

// Load reads .env (if present), the process environment and an optional YAML
// overlay named by CONFIG_FILE. Overlay values win over the environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		StorageBackend: getEnv("STORAGE_BACKEND", "clickhouse"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "co2"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		SQLitePath: getEnv("SQLITE_PATH", "./data/co2.db"),

		MQTTBroker:       getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "co2-monitor"),
		MQTTUsername:     getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		MQTTTopicChanges: getEnv("MQTT_TOPIC_CHANGES", "co2/changes/co2_data"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		ReportingTimezone: getEnv("REPORTING_TZ", "Asia/Bangkok"),
		DisplayTimezone:   getEnv("DISPLAY_TZ", "Asia/Bangkok"),

		SeedInterval: getEnvDuration("SEED_INTERVAL", 10*time.Second),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlay(path); err != nil {
			slog.Warn("config: failed to apply overlay, using environment only", "file", path, "error", err)
		}
	}

	return cfg
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// ReportingLocation is the zone calendar days are bucketed in.
func (c *Config) ReportingLocation() *time.Location {
	return loadLocation(c.ReportingTimezone)
}

// DisplayLocation is the zone time-of-day labels are rendered in.
func (c *Config) DisplayLocation() *time.Location {
	return loadLocation(c.DisplayTimezone)
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("config: unknown time zone, falling back to UTC", "zone", name, "error", err)
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("config: failed to parse int, using default", "key", key, "error", err)
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("config: failed to parse duration, using default", "key", key, "error", err)
		return defaultValue
	}
	return d
}
