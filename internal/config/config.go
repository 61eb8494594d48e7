package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hakivo/briefcast/internal/dialogue"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type SynthesisConfig struct {
	Mode               string               `yaml:"mode"` // mock or http
	Endpoint           string               `yaml:"endpoint"`
	APIKey             string               `yaml:"api_key"`
	OutputFormat       string               `yaml:"output_format"`
	SampleRate         int                  `yaml:"sample_rate"`
	Channels           int                  `yaml:"channels"`
	BitDepth           int                  `yaml:"bit_depth"`
	CharBudget         int                  `yaml:"char_budget"`
	CallTimeoutMS      int                  `yaml:"call_timeout_ms"`
	MaxAttempts        int                  `yaml:"max_attempts"`
	RateLimitBackoffMS int                  `yaml:"rate_limit_backoff_ms"`
	TransientBackoffMS int                  `yaml:"transient_backoff_ms"`
	BatchPauseMS       int                  `yaml:"batch_pause_ms"`
	Voices             []dialogue.VoicePair `yaml:"voices"`
}

func (c SynthesisConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

func (c SynthesisConfig) RateLimitBackoff() time.Duration {
	return time.Duration(c.RateLimitBackoffMS) * time.Millisecond
}

func (c SynthesisConfig) TransientBackoff() time.Duration {
	return time.Duration(c.TransientBackoffMS) * time.Millisecond
}

func (c SynthesisConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMS) * time.Millisecond
}

type StorageConfig struct {
	Bucket        string `yaml:"bucket"`
	PublicBaseURL string `yaml:"public_base_url"`
	KeyPrefix     string `yaml:"key_prefix"`
}

type PollerConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMS int  `yaml:"interval_ms"`
}

func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Storage     StorageConfig   `yaml:"storage"`
	Poller      PollerConfig    `yaml:"poller"`
}

func Default() Config {
	return Config{
		ServiceName: "briefcast",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path: "./data/briefcast-jobs.db",
		},
		Synthesis: SynthesisConfig{
			Mode:               "mock",
			OutputFormat:       "pcm_16000",
			SampleRate:         16000,
			Channels:           1,
			BitDepth:           16,
			CharBudget:         2800,
			CallTimeoutMS:      120000,
			MaxAttempts:        3,
			RateLimitBackoffMS: 30000,
			TransientBackoffMS: 2000,
			BatchPauseMS:       500,
			Voices: []dialogue.VoicePair{
				{VoiceA: "host-m-1", VoiceB: "host-f-1"},
				{VoiceA: "host-f-2", VoiceB: "host-m-2"},
			},
		},
		Storage: StorageConfig{
			Bucket:        "briefcast-audio",
			PublicBaseURL: "http://localhost:8080/assets",
			KeyPrefix:     "audio",
		},
		Poller: PollerConfig{
			Enabled:    true,
			IntervalMS: 60000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "BRIEFCAST_SERVICE_NAME")
	overrideString(&cfg.Environment, "BRIEFCAST_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "BRIEFCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "BRIEFCAST_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "BRIEFCAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "BRIEFCAST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "BRIEFCAST_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "BRIEFCAST_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "BRIEFCAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "BRIEFCAST_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "BRIEFCAST_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "BRIEFCAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "BRIEFCAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "BRIEFCAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "BRIEFCAST_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "BRIEFCAST_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "BRIEFCAST_STORE_PATH")
	overrideString(&cfg.Synthesis.Mode, "BRIEFCAST_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Endpoint, "BRIEFCAST_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Synthesis.APIKey, "BRIEFCAST_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.OutputFormat, "BRIEFCAST_SYNTHESIS_OUTPUT_FORMAT")
	overrideInt(&cfg.Synthesis.SampleRate, "BRIEFCAST_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "BRIEFCAST_SYNTHESIS_CHANNELS")
	overrideInt(&cfg.Synthesis.BitDepth, "BRIEFCAST_SYNTHESIS_BIT_DEPTH")
	overrideInt(&cfg.Synthesis.CharBudget, "BRIEFCAST_SYNTHESIS_CHAR_BUDGET")
	overrideInt(&cfg.Synthesis.CallTimeoutMS, "BRIEFCAST_SYNTHESIS_CALL_TIMEOUT_MS")
	overrideInt(&cfg.Synthesis.MaxAttempts, "BRIEFCAST_SYNTHESIS_MAX_ATTEMPTS")
	overrideInt(&cfg.Synthesis.RateLimitBackoffMS, "BRIEFCAST_SYNTHESIS_RATE_LIMIT_BACKOFF_MS")
	overrideInt(&cfg.Synthesis.TransientBackoffMS, "BRIEFCAST_SYNTHESIS_TRANSIENT_BACKOFF_MS")
	overrideInt(&cfg.Synthesis.BatchPauseMS, "BRIEFCAST_SYNTHESIS_BATCH_PAUSE_MS")
	overrideString(&cfg.Storage.Bucket, "BRIEFCAST_STORAGE_BUCKET")
	overrideString(&cfg.Storage.PublicBaseURL, "BRIEFCAST_STORAGE_PUBLIC_BASE_URL")
	overrideString(&cfg.Storage.KeyPrefix, "BRIEFCAST_STORAGE_KEY_PREFIX")
	overrideBool(&cfg.Poller.Enabled, "BRIEFCAST_POLLER_ENABLED")
	overrideInt(&cfg.Poller.IntervalMS, "BRIEFCAST_POLLER_INTERVAL_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	switch cfg.Synthesis.Mode {
	case "mock", "http":
	default:
		return errors.New("synthesis.mode must be one of mock|http")
	}
	if cfg.Synthesis.Mode == "http" && cfg.Synthesis.Endpoint == "" {
		return errors.New("synthesis.endpoint must be set when mode=http")
	}
	if cfg.Synthesis.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.Synthesis.Channels <= 0 {
		return errors.New("synthesis.channels must be positive")
	}
	if cfg.Synthesis.BitDepth != 16 {
		return errors.New("synthesis.bit_depth must be 16")
	}
	if cfg.Synthesis.CharBudget <= 0 {
		return errors.New("synthesis.char_budget must be positive")
	}
	if cfg.Synthesis.MaxAttempts <= 0 {
		return errors.New("synthesis.max_attempts must be >= 1")
	}
	if cfg.Synthesis.CallTimeoutMS <= 0 {
		return errors.New("synthesis.call_timeout_ms must be positive")
	}
	if len(cfg.Synthesis.Voices) == 0 {
		return errors.New("synthesis.voices must not be empty")
	}
	for i, pair := range cfg.Synthesis.Voices {
		if pair.VoiceA == "" || pair.VoiceB == "" {
			return fmt.Errorf("synthesis.voices[%d] must set both voice_a and voice_b", i)
		}
	}
	if cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket must not be empty")
	}
	if cfg.Storage.PublicBaseURL == "" {
		return errors.New("storage.public_base_url must not be empty")
	}
	if cfg.Poller.Enabled && cfg.Poller.IntervalMS <= 0 {
		return errors.New("poller.interval_ms must be positive when the poller is enabled")
	}
	return nil
}
