package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

// SlogLevel maps the configured log level onto slog's levels. Unknown
// values fall back to info.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(t.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// PipelineConfig describes the synthesis pipeline constructed at startup.
type PipelineConfig struct {
	Mode         string  `yaml:"mode"` // mock, exec
	Command      string  `yaml:"command"`
	LangCode     string  `yaml:"lang_code"`
	DefaultVoice string  `yaml:"default_voice"`
	DefaultSpeed float64 `yaml:"default_speed"`
	SampleRate   int     `yaml:"sample_rate"`
	Channels     int     `yaml:"channels"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Embedded          bool     `yaml:"embedded"`
	Port              int      `yaml:"port"`
	Servers           []string `yaml:"servers"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	Token             string   `yaml:"token"`
	TLSInsecure       bool     `yaml:"tls_insecure"`
	ConnectTimeout    int      `yaml:"connect_timeout_ms"`
	NodeID            string   `yaml:"node_id"`
	HeartbeatInterval int      `yaml:"heartbeat_interval_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Journal     JournalConfig   `yaml:"journal"`
	Bus         BusConfig       `yaml:"bus"`
}

func Default() Config {
	return Config{
		ServiceName: "newslett-tts",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8888,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Pipeline: PipelineConfig{
			Mode:         "exec",
			Command:      "kokoro-runner",
			LangCode:     "a",
			DefaultVoice: "af_heart",
			DefaultSpeed: 1.0,
			SampleRate:   24000,
			Channels:     1,
		},
		Journal: JournalConfig{
			Path:          "./data/ttsd-journal.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    100000,
		},
		Bus: BusConfig{
			Enabled:           false,
			Embedded:          false,
			Port:              4222,
			Servers:           []string{"nats://localhost:4222"},
			ConnectTimeout:    2000,
			NodeID:            "ttsd-node-1",
			HeartbeatInterval: 2000,
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
	overrideString(&cfg.ServiceName, "TTSD_SERVICE_NAME")
	overrideString(&cfg.Environment, "TTSD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TTSD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TTSD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TTSD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TTSD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TTSD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "TTSD_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Pipeline.Mode, "TTSD_PIPELINE_MODE")
	overrideString(&cfg.Pipeline.Command, "TTSD_PIPELINE_COMMAND")
	overrideString(&cfg.Pipeline.LangCode, "TTSD_PIPELINE_LANG_CODE")
	overrideString(&cfg.Pipeline.DefaultVoice, "TTSD_PIPELINE_DEFAULT_VOICE")
	overrideFloat(&cfg.Pipeline.DefaultSpeed, "TTSD_PIPELINE_DEFAULT_SPEED")
	overrideInt(&cfg.Pipeline.SampleRate, "TTSD_PIPELINE_SAMPLE_RATE")
	overrideInt(&cfg.Pipeline.Channels, "TTSD_PIPELINE_CHANNELS")
	overrideString(&cfg.Journal.Path, "TTSD_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "TTSD_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "TTSD_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxRecords, "TTSD_JOURNAL_MAX_RECORDS")
	overrideBool(&cfg.Journal.VacuumOnStart, "TTSD_JOURNAL_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "TTSD_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "TTSD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TTSD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TTSD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TTSD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TTSD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TTSD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TTSD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TTSD_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.NodeID, "TTSD_BUS_NODE_ID")
	overrideInt(&cfg.Bus.HeartbeatInterval, "TTSD_BUS_HEARTBEAT_INTERVAL_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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
	switch cfg.Pipeline.Mode {
	case "mock", "exec":
	default:
		return errors.New("pipeline.mode must be one of mock|exec")
	}
	if cfg.Pipeline.Mode == "exec" && cfg.Pipeline.Command == "" {
		return errors.New("pipeline.command must be set when mode=exec")
	}
	if cfg.Pipeline.LangCode == "" {
		return errors.New("pipeline.lang_code must not be empty")
	}
	if cfg.Pipeline.DefaultVoice == "" {
		return errors.New("pipeline.default_voice must not be empty")
	}
	if cfg.Pipeline.DefaultSpeed <= 0 {
		return errors.New("pipeline.default_speed must be positive")
	}
	if cfg.Pipeline.SampleRate <= 0 {
		return errors.New("pipeline.sample_rate must be positive")
	}
	if cfg.Pipeline.Channels <= 0 {
		return errors.New("pipeline.channels must be positive")
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.NodeID == "" {
			return errors.New("bus.node_id must not be empty")
		}
		if cfg.Bus.HeartbeatInterval <= 0 {
			return errors.New("bus.heartbeat_interval_ms must be positive")
		}
	}
	return nil
}
