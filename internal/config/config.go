// Package config загружает конфигурацию сервиса: значения по умолчанию,
// необязательный YAML файл и переменные окружения с префиксом SENTIMENT_.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "SENTIMENT_"

// Config содержит конфигурацию сервиса
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	ModelName    string        `koanf:"model_name"`
	ModelBackend string        `koanf:"model_backend"`
	ModelURL     string        `koanf:"model_url"`
	ModelTimeout time.Duration `koanf:"model_timeout"`
	Device       int           `koanf:"device"`

	InferenceWorkers int `koanf:"inference_workers"`
	SlowRequestMs    int `koanf:"slow_request_ms"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	RedisAddr        string        `koanf:"redis_addr"`
	RedisPassword    string        `koanf:"redis_password"`
	RedisDB          int           `koanf:"redis_db"`
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`

	Tracing     bool   `koanf:"tracing"`
	ServiceName string `koanf:"service_name"`

	Beacon BeaconConfig `koanf:"beacon"`
}

// BeaconConfig параметры mDNS анонса
type BeaconConfig struct {
	Instance   string            `koanf:"instance"`
	Service    string            `koanf:"service"`
	Domain     string            `koanf:"domain"`
	Hostname   string            `koanf:"hostname"`
	Port       int               `koanf:"port"`
	Interval   time.Duration     `koanf:"interval"`
	Properties map[string]string `koanf:"properties"`
}

// Addr возвращает адрес для прослушивания
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlowThreshold порог медленного инференса
func (c Config) SlowThreshold() time.Duration {
	return time.Duration(c.SlowRequestMs) * time.Millisecond
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"host":              "0.0.0.0",
		"port":              8001,
		"model_name":        "distilbert-base-uncased-finetuned-sst-2-english",
		"model_backend":     "lexicon",
		"model_url":         "",
		"model_timeout":     30 * time.Second,
		"device":            -1,
		"inference_workers": runtime.NumCPU(),
		"slow_request_ms":   100,
		"log_level":         "info",
		"log_format":        "text",
		"read_timeout":      15 * time.Second,
		"write_timeout":     60 * time.Second,
		"idle_timeout":      60 * time.Second,
		"shutdown_timeout":  30 * time.Second,
		"cors_origins":      []string{"*"},
		"redis_addr":        "",
		"redis_password":    "",
		"redis_db":          0,
		"snapshot_interval": 5 * time.Second,
		"tracing":           false,
		"service_name":      "edge-sentiment",
		"beacon.instance":   "Hospitality AI - Greengrass",
		"beacon.service":    "_hospitality._tcp",
		"beacon.domain":     "local.",
		"beacon.hostname":   "greengrass",
		"beacon.port":       0,
		"beacon.interval":   10 * time.Second,
		"beacon.properties": map[string]interface{}{
			"version":      "1.0.0",
			"api":          "v1",
			"endpoints":    "sentiment",
			"manufacturer": "Hospitality AI SDK",
			"model":        "AWS IoT Greengrass Core v2",
			"security":     "network-isolated",
		},
	}
}

// Load загружает конфигурацию. path - необязательный путь к YAML файлу.
// Файл .env в рабочей директории подхватывается, если существует.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// SENTIMENT_BEACON__PORT -> beacon.port
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	for key, val := range defaults() {
		if !k.Exists(key) {
			if err := k.Set(key, val); err != nil {
				return Config{}, fmt.Errorf("config: default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет значения конфигурации
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port must be in 1..65535, got %d", c.Port)
	}
	if c.InferenceWorkers <= 0 {
		return fmt.Errorf("config: inference_workers must be positive, got %d", c.InferenceWorkers)
	}
	if c.SlowRequestMs <= 0 {
		return fmt.Errorf("config: slow_request_ms must be positive, got %d", c.SlowRequestMs)
	}
	switch c.ModelBackend {
	case "lexicon":
	case "http":
		if c.ModelURL == "" {
			return errors.New("config: model_url is required for the http backend")
		}
	default:
		return fmt.Errorf("config: unknown model_backend %q", c.ModelBackend)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("config: snapshot_interval must be positive, got %s", c.SnapshotInterval)
	}
	if c.Beacon.Port < 0 || c.Beacon.Port > 65535 {
		return fmt.Errorf("config: beacon.port must be in 0..65535, got %d", c.Beacon.Port)
	}
	return nil
}

// splitList раскладывает значения вида "a,b" из переменных окружения
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
