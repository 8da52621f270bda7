package config

import (
	"strings"
	"testing"
)

const minimalYAML = `
database:
  dsn: postgres://localhost/hansardflow
asr:
  provider: mock
`

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q; want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q; want info", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d; want 3", cfg.Pipeline.MaxRetries)
	}
	if cfg.Pipeline.PollIntervalMinutes != 30 {
		t.Errorf("PollIntervalMinutes = %d; want 30", cfg.Pipeline.PollIntervalMinutes)
	}
	if len(cfg.Legislatures) != 3 {
		t.Fatalf("got %d default legislatures; want 3", len(cfg.Legislatures))
	}
	if cfg.Legislatures[0].Code != "CA" || cfg.Legislatures[0].GovernmentLevel != "federal" {
		t.Errorf("first default legislature = %+v; want CA/federal", cfg.Legislatures[0])
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("databse:\n  dsn: x\n"))
	if err == nil {
		t.Fatal("expected error for misspelled top-level key")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
		if err != nil {
			t.Fatalf("LoadFromReader: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: "database.dsn",
		},
		{
			name:    "native asr without model",
			mutate:  func(c *Config) { c.ASR.Provider = ASRWhisperNative },
			wantErr: "model_path",
		},
		{
			name:    "server asr without url",
			mutate:  func(c *Config) { c.ASR.Provider = ASRWhisperServer },
			wantErr: "server_url",
		},
		{
			name:    "forum without bot user",
			mutate:  func(c *Config) { c.Forum.BaseURL = "https://forum.example.ca" },
			wantErr: "bot_user_id",
		},
		{
			name: "duplicate legislature code",
			mutate: func(c *Config) {
				c.Legislatures = append(c.Legislatures, LegislatureConfig{
					Code: "CA", Name: "Dup", GovernmentLevel: "federal",
				})
			},
			wantErr: "duplicate code",
		},
		{
			name: "bad government level",
			mutate: func(c *Config) {
				c.Legislatures[0].GovernmentLevel = "municipal"
			},
			wantErr: "government_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v; want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v; want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}
