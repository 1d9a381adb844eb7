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

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// CodecConfig locates the two model endpoints a synthesis run consumes.
type CodecConfig struct {
	CompletionEndpoint string `yaml:"completion_endpoint"`
	EmbeddingEndpoint  string `yaml:"embedding_endpoint"`
	VoicePath          string `yaml:"voice_path"`
	NPredict           int    `yaml:"n_predict"`
	TopK               int    `yaml:"top_k"`
	Seed               int    `yaml:"seed"`
	TimeoutMS          int    `yaml:"timeout_ms"`
}

// VocoderConfig is the synthesis geometry; the defaults match the 24 kHz
// codec and should only change together with the embedding model.
type VocoderConfig struct {
	NFFT         int `yaml:"n_fft"`
	NHop         int `yaml:"n_hop"`
	NWin         int `yaml:"n_win"`
	SampleRate   int `yaml:"sample_rate"`
	Workers      int `yaml:"workers"`
	LeadInMuteMS int `yaml:"lead_in_mute_ms"`
}

type OutputConfig struct {
	Directory string `yaml:"directory"`
}

type JobStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type PlayerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Codec       CodecConfig     `yaml:"codec"`
	Vocoder     VocoderConfig   `yaml:"vocoder"`
	Output      OutputConfig    `yaml:"output"`
	JobStore    JobStoreConfig  `yaml:"job_store"`
	Player      PlayerConfig    `yaml:"player"`
}

func Default() Config {
	return Config{
		RuntimeName: "foldsynth",
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
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Codec: CodecConfig{
			CompletionEndpoint: "http://localhost:8020",
			EmbeddingEndpoint:  "http://localhost:8021",
			NPredict:           1024,
			TopK:               16,
			Seed:               1003,
			TimeoutMS:          120000,
		},
		Vocoder: VocoderConfig{
			NFFT:         1280,
			NHop:         320,
			NWin:         1280,
			SampleRate:   24000,
			Workers:      4,
			LeadInMuteMS: 250,
		},
		Output: OutputConfig{
			Directory: "./data/audio",
		},
		JobStore: JobStoreConfig{
			Path:          "./data/foldsynth-jobs.db",
			RetentionMode: "persistent",
			MaxJobs:       10000,
		},
		Player: PlayerConfig{
			Enabled: false,
			Command: "aplay",
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
	overrideString(&cfg.RuntimeName, "FOLDSYNTH_RUNTIME_NAME")
	overrideString(&cfg.Environment, "FOLDSYNTH_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FOLDSYNTH_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FOLDSYNTH_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FOLDSYNTH_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FOLDSYNTH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FOLDSYNTH_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "FOLDSYNTH_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FOLDSYNTH_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "FOLDSYNTH_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "FOLDSYNTH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FOLDSYNTH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FOLDSYNTH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FOLDSYNTH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FOLDSYNTH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FOLDSYNTH_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Codec.CompletionEndpoint, "FOLDSYNTH_CODEC_COMPLETION_ENDPOINT")
	overrideString(&cfg.Codec.EmbeddingEndpoint, "FOLDSYNTH_CODEC_EMBEDDING_ENDPOINT")
	overrideString(&cfg.Codec.VoicePath, "FOLDSYNTH_CODEC_VOICE_PATH")
	overrideInt(&cfg.Codec.NPredict, "FOLDSYNTH_CODEC_N_PREDICT")
	overrideInt(&cfg.Codec.TopK, "FOLDSYNTH_CODEC_TOP_K")
	overrideInt(&cfg.Codec.Seed, "FOLDSYNTH_CODEC_SEED")
	overrideInt(&cfg.Codec.TimeoutMS, "FOLDSYNTH_CODEC_TIMEOUT_MS")
	overrideInt(&cfg.Vocoder.NFFT, "FOLDSYNTH_VOCODER_N_FFT")
	overrideInt(&cfg.Vocoder.NHop, "FOLDSYNTH_VOCODER_N_HOP")
	overrideInt(&cfg.Vocoder.NWin, "FOLDSYNTH_VOCODER_N_WIN")
	overrideInt(&cfg.Vocoder.SampleRate, "FOLDSYNTH_VOCODER_SAMPLE_RATE")
	overrideInt(&cfg.Vocoder.Workers, "FOLDSYNTH_VOCODER_WORKERS")
	overrideInt(&cfg.Vocoder.LeadInMuteMS, "FOLDSYNTH_VOCODER_LEAD_IN_MUTE_MS")
	overrideString(&cfg.Output.Directory, "FOLDSYNTH_OUTPUT_DIRECTORY")
	overrideString(&cfg.JobStore.Path, "FOLDSYNTH_JOB_STORE_PATH")
	overrideString(&cfg.JobStore.RetentionMode, "FOLDSYNTH_JOB_STORE_RETENTION_MODE")
	overrideInt(&cfg.JobStore.MaxJobs, "FOLDSYNTH_JOB_STORE_MAX_JOBS")
	overrideBool(&cfg.JobStore.VacuumOnStart, "FOLDSYNTH_JOB_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Player.Enabled, "FOLDSYNTH_PLAYER_ENABLED")
	overrideString(&cfg.Player.Command, "FOLDSYNTH_PLAYER_COMMAND")
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
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
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
	if cfg.Codec.CompletionEndpoint == "" {
		return errors.New("codec.completion_endpoint must not be empty")
	}
	if cfg.Codec.EmbeddingEndpoint == "" {
		return errors.New("codec.embedding_endpoint must not be empty")
	}
	if cfg.Codec.NPredict <= 0 {
		return errors.New("codec.n_predict must be positive")
	}
	if cfg.Codec.TopK <= 0 {
		return errors.New("codec.top_k must be positive")
	}
	if cfg.Vocoder.NFFT <= 0 {
		return errors.New("vocoder.n_fft must be positive")
	}
	if cfg.Vocoder.NHop <= 0 {
		return errors.New("vocoder.n_hop must be positive")
	}
	if cfg.Vocoder.NWin <= 0 || cfg.Vocoder.NWin > cfg.Vocoder.NFFT {
		return errors.New("vocoder.n_win must be positive and no larger than n_fft")
	}
	if cfg.Vocoder.SampleRate <= 0 {
		return errors.New("vocoder.sample_rate must be positive")
	}
	if cfg.Vocoder.Workers < 0 {
		return errors.New("vocoder.workers must not be negative")
	}
	if cfg.Vocoder.LeadInMuteMS < 0 {
		return errors.New("vocoder.lead_in_mute_ms must not be negative")
	}
	if cfg.Output.Directory == "" {
		return errors.New("output.directory must not be empty")
	}
	switch cfg.JobStore.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("job_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.JobStore.RetentionMode == "persistent" && cfg.JobStore.Path == "" {
		return errors.New("job_store.path must not be empty in persistent mode")
	}
	if cfg.JobStore.MaxJobs < 0 {
		return errors.New("job_store.max_jobs must be >= 0")
	}
	if cfg.Player.Enabled && cfg.Player.Command == "" {
		return errors.New("player.command must be set when the player is enabled")
	}
	return nil
}
