package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	STT         STTConfig         `yaml:"stt"`
	Accent      AccentConfig      `yaml:"accent"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// AcquisitionConfig drives the media downloader. Command is parsed with shell
// quoting rules; the output template and source URL are appended.
type AcquisitionConfig struct {
	Command     string `yaml:"command"`
	WorkDir     string `yaml:"work_dir"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	MaxAttempts int    `yaml:"max_attempts"`
	RetryBaseMS int    `yaml:"retry_base_ms"`
	AllowLocal  bool   `yaml:"allow_local"`
}

type STTConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	MockTranscript string `yaml:"mock_transcript"`
}

// AccentConfig holds the tunable constants of the classification engine.
type AccentConfig struct {
	LexiconPath            string  `yaml:"lexicon_path"`
	LexicalWeight          int     `yaml:"lexical_weight"`
	TempoFast              float64 `yaml:"tempo_fast"`
	TempoModerate          float64 `yaml:"tempo_moderate"`
	PitchHigh              float64 `yaml:"pitch_high"`
	PitchModerate          float64 `yaml:"pitch_moderate"`
	BaseConfidence         float64 `yaml:"base_confidence"`
	ConfidencePerPoint     float64 `yaml:"confidence_per_point"`
	MaxConfidence          float64 `yaml:"max_confidence"`
	NeutralConfidence      float64 `yaml:"neutral_confidence"`
	ShortNeutralConfidence float64 `yaml:"short_neutral_confidence"`
	MinTranscriptRunes     int     `yaml:"min_transcript_runes"`
	FrameLength            int     `yaml:"frame_length"`
	HopLength              int     `yaml:"hop_length"`
}

// AnalyzerConfig controls the bus consumer. NodeID identifies this process to
// peer analyzers; a random id is generated when empty.
type AnalyzerConfig struct {
	Enabled             bool   `yaml:"enabled"`
	NodeID              string `yaml:"node_id"`
	Queue               string `yaml:"queue"`
	MaxConcurrency      int    `yaml:"max_concurrency"`
	TimeoutMS           int    `yaml:"timeout_ms"`
	HeartbeatIntervalMS int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int    `yaml:"heartbeat_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-accent",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Host:           "127.0.0.1",
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/accent-analyses.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Acquisition: AcquisitionConfig{
			Command:     "yt-dlp",
			TimeoutMS:   300000,
			MaxAttempts: 3,
			RetryBaseMS: 500,
			AllowLocal:  true,
		},
		STT: STTConfig{
			Mode:      "mock",
			Language:  "en",
			TimeoutMS: 120000,
		},
		Accent: AccentConfig{
			LexicalWeight:          2,
			TempoFast:              120,
			TempoModerate:          100,
			PitchHigh:              0.07,
			PitchModerate:          0.05,
			BaseConfidence:         50,
			ConfidencePerPoint:     10,
			MaxConfidence:          95,
			NeutralConfidence:      60,
			ShortNeutralConfidence: 40,
			MinTranscriptRunes:     50,
			FrameLength:            2048,
			HopLength:              512,
		},
		Analyzer: AnalyzerConfig{
			Enabled:             true,
			Queue:               "accent-analyzers",
			MaxConcurrency:      2,
			TimeoutMS:           600000,
			HeartbeatIntervalMS: 5000,
			HeartbeatTimeoutMS:  15000,
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
	overrideString(&cfg.RuntimeName, "ACCENT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ACCENT_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ACCENT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ACCENT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ACCENT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ACCENT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ACCENT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "ACCENT_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "ACCENT_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "ACCENT_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "ACCENT_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "ACCENT_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "ACCENT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ACCENT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ACCENT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ACCENT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ACCENT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ACCENT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "ACCENT_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "ACCENT_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "ACCENT_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRecords, "ACCENT_EVENT_STORE_MAX_RECORDS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "ACCENT_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Acquisition.Command, "ACCENT_ACQUISITION_COMMAND")
	overrideString(&cfg.Acquisition.WorkDir, "ACCENT_ACQUISITION_WORK_DIR")
	overrideInt(&cfg.Acquisition.TimeoutMS, "ACCENT_ACQUISITION_TIMEOUT_MS")
	overrideInt(&cfg.Acquisition.MaxAttempts, "ACCENT_ACQUISITION_MAX_ATTEMPTS")
	overrideInt(&cfg.Acquisition.RetryBaseMS, "ACCENT_ACQUISITION_RETRY_BASE_MS")
	overrideBool(&cfg.Acquisition.AllowLocal, "ACCENT_ACQUISITION_ALLOW_LOCAL")
	overrideString(&cfg.STT.Mode, "ACCENT_STT_MODE")
	overrideString(&cfg.STT.Command, "ACCENT_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "ACCENT_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "ACCENT_STT_LANGUAGE")
	overrideInt(&cfg.STT.TimeoutMS, "ACCENT_STT_TIMEOUT_MS")
	overrideString(&cfg.STT.MockTranscript, "ACCENT_STT_MOCK_TRANSCRIPT")
	overrideString(&cfg.Accent.LexiconPath, "ACCENT_LEXICON_PATH")
	overrideInt(&cfg.Accent.LexicalWeight, "ACCENT_LEXICAL_WEIGHT")
	overrideFloat(&cfg.Accent.TempoFast, "ACCENT_TEMPO_FAST")
	overrideFloat(&cfg.Accent.TempoModerate, "ACCENT_TEMPO_MODERATE")
	overrideFloat(&cfg.Accent.PitchHigh, "ACCENT_PITCH_HIGH")
	overrideFloat(&cfg.Accent.PitchModerate, "ACCENT_PITCH_MODERATE")
	overrideFloat(&cfg.Accent.MaxConfidence, "ACCENT_MAX_CONFIDENCE")
	overrideInt(&cfg.Accent.MinTranscriptRunes, "ACCENT_MIN_TRANSCRIPT_RUNES")
	overrideBool(&cfg.Analyzer.Enabled, "ACCENT_ANALYZER_ENABLED")
	overrideString(&cfg.Analyzer.NodeID, "ACCENT_ANALYZER_NODE_ID")
	overrideString(&cfg.Analyzer.Queue, "ACCENT_ANALYZER_QUEUE")
	overrideInt(&cfg.Analyzer.MaxConcurrency, "ACCENT_ANALYZER_MAX_CONCURRENCY")
	overrideInt(&cfg.Analyzer.TimeoutMS, "ACCENT_ANALYZER_TIMEOUT_MS")
	overrideInt(&cfg.Analyzer.HeartbeatIntervalMS, "ACCENT_ANALYZER_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Analyzer.HeartbeatTimeoutMS, "ACCENT_ANALYZER_HEARTBEAT_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if err := validateEventStore(cfg.EventStore); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Acquisition.Command) == "" {
		return errors.New("acquisition.command must not be empty")
	}
	if cfg.Acquisition.MaxAttempts <= 0 {
		return errors.New("acquisition.max_attempts must be >= 1")
	}
	if cfg.Acquisition.TimeoutMS < 0 || cfg.Acquisition.RetryBaseMS < 0 {
		return errors.New("acquisition timeouts must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if err := validateAccent(cfg.Accent); err != nil {
		return err
	}
	if cfg.Analyzer.Enabled {
		if !cfg.Bus.Enabled {
			return errors.New("analyzer requires bus.enabled")
		}
		if cfg.Analyzer.MaxConcurrency <= 0 {
			return errors.New("analyzer.max_concurrency must be >= 1")
		}
		if cfg.Analyzer.HeartbeatIntervalMS <= 0 {
			return errors.New("analyzer.heartbeat_interval_ms must be > 0")
		}
		if cfg.Analyzer.HeartbeatTimeoutMS <= cfg.Analyzer.HeartbeatIntervalMS {
			return errors.New("analyzer.heartbeat_timeout_ms must exceed heartbeat_interval_ms")
		}
	}
	return nil
}

func validateEventStore(cfg EventStoreConfig) error {
	switch cfg.RetentionMode {
	case "ephemeral":
		return nil
	case "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.MaxRecords < 0 {
		return errors.New("event_store.max_records must be >= 0")
	}
	return nil
}

func validateAccent(cfg AccentConfig) error {
	if cfg.LexicalWeight <= 0 {
		return errors.New("accent.lexical_weight must be >= 1")
	}
	if cfg.TempoModerate < 0 || cfg.TempoFast <= cfg.TempoModerate {
		return errors.New("accent.tempo_fast must be greater than accent.tempo_moderate")
	}
	if cfg.PitchModerate < 0 || cfg.PitchHigh <= cfg.PitchModerate {
		return errors.New("accent.pitch_high must be greater than accent.pitch_moderate")
	}
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence > 100 {
		return errors.New("accent.max_confidence must be in (0, 100]")
	}
	if cfg.BaseConfidence < 0 || cfg.BaseConfidence > cfg.MaxConfidence {
		return errors.New("accent.base_confidence must be in [0, max_confidence]")
	}
	if cfg.NeutralConfidence < 0 || cfg.NeutralConfidence > 100 || cfg.ShortNeutralConfidence < 0 || cfg.ShortNeutralConfidence > 100 {
		return errors.New("accent neutral confidences must be in [0, 100]")
	}
	if cfg.MinTranscriptRunes < 0 {
		return errors.New("accent.min_transcript_runes must be >= 0")
	}
	if cfg.FrameLength < 2 || cfg.HopLength <= 0 {
		return errors.New("accent.frame_length must be >= 2 and accent.hop_length positive")
	}
	return nil
}
