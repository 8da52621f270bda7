package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, overlays environment
// secrets, and returns a validated [Config].
//
// Before reading the environment, a .env file in the working directory is
// loaded if present (existing environment variables win). This mirrors local
// development setups where secrets live in .env rather than the shell.
func Load(path string) (*Config, error) {
	// Ignore a missing .env; only a parse failure is worth surfacing.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and applies defaults. It does
// not read the environment or validate — useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero values with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.PollIntervalMinutes == 0 {
		cfg.Pipeline.PollIntervalMinutes = 30
	}
	if cfg.Media.Root == "" {
		cfg.Media.Root = "./media"
	}
	if cfg.ASR.Provider == "" {
		cfg.ASR.Provider = ASRWhisperNative
	}
	if cfg.ASR.ModelName == "" {
		cfg.ASR.ModelName = cfg.ASR.ModelPath
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if len(cfg.Legislatures) == 0 {
		cfg.Legislatures = []LegislatureConfig{
			{Code: "CA", Name: "House of Commons", GovernmentLevel: "federal"},
			{Code: "ON", Name: "Legislative Assembly of Ontario", GovernmentLevel: "provincial"},
			{Code: "QC", Name: "Assemblée nationale du Québec", GovernmentLevel: "provincial"},
		}
	}
}

// applyEnv overlays environment-provided secrets and overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Broker.URL = v
	}
	cfg.APIKey = os.Getenv("PIPELINE_API_KEY")
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Forum.APIKey = os.Getenv("FORUM_API_KEY")
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required (or set DATABASE_URL)"))
	}
	if !cfg.ASR.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("asr.provider %q is invalid; valid values: whisper-native, whisper-server, mock", cfg.ASR.Provider))
	}
	switch cfg.ASR.Provider {
	case ASRWhisperNative:
		if cfg.ASR.ModelPath == "" {
			errs = append(errs, errors.New("asr.model_path is required for the whisper-native provider"))
		}
	case ASRWhisperServer:
		if cfg.ASR.ServerURL == "" {
			errs = append(errs, errors.New("asr.server_url is required for the whisper-server provider"))
		}
	}
	if cfg.Forum.BaseURL != "" && cfg.Forum.BotUserID == "" {
		errs = append(errs, errors.New("forum.bot_user_id is required when forum.base_url is set"))
	}

	seen := make(map[string]int, len(cfg.Legislatures))
	for i, leg := range cfg.Legislatures {
		prefix := fmt.Sprintf("legislatures[%d]", i)
		if leg.Code == "" {
			errs = append(errs, fmt.Errorf("%s: code is required", prefix))
		}
		if leg.GovernmentLevel != "federal" && leg.GovernmentLevel != "provincial" {
			errs = append(errs, fmt.Errorf("%s: government_level %q is invalid; valid values: federal, provincial", prefix, leg.GovernmentLevel))
		}
		if prev, dup := seen[leg.Code]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate code %q (also legislatures[%d])", prefix, leg.Code, prev))
		}
		seen[leg.Code] = i
	}

	return errors.Join(errs...)
}
