// Package config loads the daemon configuration from
// ~/.config/memoscribe/config.json. Secrets never live in the file; they come
// from the environment, optionally seeded from a .env file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tiroq/memoscribe/internal/asr/awstranscribe"
	"github.com/tiroq/memoscribe/internal/asr/localwhisper"
	"github.com/tiroq/memoscribe/internal/asr/openai"
	"github.com/tiroq/memoscribe/internal/asr/remotewhisper"
)

// Backend names accepted in ASRConfig.
const (
	BackendOpenAI        = openai.Name
	BackendRemoteWhisper = remotewhisper.Name
	BackendAWS           = awstranscribe.Name
	BackendLocalWhisper  = localwhisper.Name
)

// ASRConfig selects and configures the capability backends.
type ASRConfig struct {
	Primary       string               `json:"primary"`
	Fallback      string               `json:"fallback,omitempty"`
	Summarizer    string               `json:"summarizer"` // openai or remote_whisper
	OpenAI        openai.Config        `json:"openai"`
	RemoteWhisper remotewhisper.Config `json:"remote_whisper"`
	AWS           awstranscribe.Config `json:"aws"`
	LocalWhisper  localwhisper.Config  `json:"local_whisper"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
	JWTSecret   string   `json:"-"`
	// AuthDisabled skips bearer checks; only for loopback use.
	AuthDisabled bool `json:"auth_disabled,omitempty"`
}

// SessionConfig holds the session's timing knobs.
type SessionConfig struct {
	ProgressStep          int `json:"progress_step"`
	ProgressIntervalMS    int `json:"progress_interval_ms"`
	ProgressCap           int `json:"progress_cap"`
	URLSettleMS           int `json:"url_settle_ms"`
	CallTimeoutSeconds    int `json:"call_timeout_seconds"`
	StatusWriteThrottleMS int `json:"status_write_throttle_ms"`
}

// Config is the full daemon configuration.
type Config struct {
	ASR         ASRConfig     `json:"asr"`
	Server      ServerConfig  `json:"server"`
	Session     SessionConfig `json:"session"`
	TemplatesDB string        `json:"templates_db"`
	ExportDir   string        `json:"export_dir"`
}

// Environment variables read by ApplyEnv.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvWhisperToken = "MEMOSCRIBE_WHISPER_TOKEN"
	EnvJWTSecret    = "MEMOSCRIBE_JWT_SECRET"
	EnvServerAddr   = "MEMOSCRIBE_ADDR"
	EnvAWSBucket    = "MEMOSCRIBE_AWS_BUCKET"
	EnvAWSRegion    = "AWS_REGION"
)

// Dir returns ~/.config/memoscribe.
func Dir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "memoscribe")
}

// CacheDir returns ~/.cache/memoscribe.
func CacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "memoscribe")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ASR: ASRConfig{
			Primary:    BackendOpenAI,
			Summarizer: BackendOpenAI,
			RemoteWhisper: remotewhisper.Config{
				TimeoutSeconds: 300,
				Retries:        3,
				Model:          "small",
			},
			AWS: awstranscribe.Config{
				Prefix:              "memoscribe/",
				PollIntervalSeconds: 5,
			},
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8765",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Session: SessionConfig{
			ProgressStep:          5,
			ProgressIntervalMS:    500,
			ProgressCap:           95,
			URLSettleMS:           500,
			CallTimeoutSeconds:    600,
			StatusWriteThrottleMS: 250,
		},
		TemplatesDB: filepath.Join(Dir(), "templates.db"),
		ExportDir:   filepath.Join(os.Getenv("HOME"), "Documents", "memoscribe"),
	}
}

// Load reads ~/.config/memoscribe/config.json, falling back to Default when
// the file does not exist, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.json"))
}

// LoadFrom is Load with an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path with indentation. Secrets are not written.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ApplyEnv copies secrets and overrides from the environment. When no JWT
// secret is configured and auth is enabled a random one is generated, which
// means tokens do not survive a restart.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.ASR.OpenAI.APIKey = v
	}
	if v := os.Getenv(EnvWhisperToken); v != "" {
		c.ASR.RemoteWhisper.Token = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvAWSBucket); v != "" {
		c.ASR.AWS.Bucket = v
	}
	if v := os.Getenv(EnvAWSRegion); v != "" && c.ASR.AWS.Region == "" {
		c.ASR.AWS.Region = v
	}
	c.Server.JWTSecret = os.Getenv(EnvJWTSecret)
	if c.Server.JWTSecret == "" && !c.Server.AuthDisabled {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		c.Server.JWTSecret = hex.EncodeToString(b)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	known := map[string]bool{BackendOpenAI: true, BackendRemoteWhisper: true, BackendAWS: true, BackendLocalWhisper: true}

	if !known[c.ASR.Primary] {
		return fmt.Errorf("asr.primary must be one of openai, remote_whisper, aws_transcribe, local_whisper, got %q", c.ASR.Primary)
	}
	if c.ASR.Fallback != "" && !known[c.ASR.Fallback] {
		return fmt.Errorf("asr.fallback %q is not a known backend", c.ASR.Fallback)
	}
	if c.ASR.Summarizer != BackendOpenAI && c.ASR.Summarizer != BackendRemoteWhisper {
		return fmt.Errorf("asr.summarizer must be openai or remote_whisper, got %q", c.ASR.Summarizer)
	}
	if c.uses(BackendRemoteWhisper) && strings.TrimSpace(c.ASR.RemoteWhisper.BaseURL) == "" {
		return fmt.Errorf("asr.remote_whisper.base_url is required when remote_whisper is used")
	}
	if c.uses(BackendAWS) && (c.ASR.AWS.Bucket == "" || c.ASR.AWS.Region == "") {
		return fmt.Errorf("asr.aws.bucket and asr.aws.region are required when aws_transcribe is used")
	}
	if c.uses(BackendLocalWhisper) && strings.TrimSpace(c.ASR.LocalWhisper.BinaryPath) == "" {
		return fmt.Errorf("asr.local_whisper.binary_path is required when local_whisper is used")
	}

	s := c.Session
	if s.ProgressStep < 1 || s.ProgressStep > 50 {
		return fmt.Errorf("session.progress_step must be between 1 and 50, got %d", s.ProgressStep)
	}
	if s.ProgressIntervalMS < 10 {
		return fmt.Errorf("session.progress_interval_ms must be at least 10, got %d", s.ProgressIntervalMS)
	}
	if s.ProgressCap < 1 || s.ProgressCap > 99 {
		return fmt.Errorf("session.progress_cap must be between 1 and 99, got %d", s.ProgressCap)
	}
	if s.URLSettleMS < 0 {
		return fmt.Errorf("session.url_settle_ms must not be negative")
	}
	if s.CallTimeoutSeconds < 1 {
		return fmt.Errorf("session.call_timeout_seconds must be at least 1, got %d", s.CallTimeoutSeconds)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.TemplatesDB == "" {
		return fmt.Errorf("templates_db is required")
	}
	return nil
}

func (c *Config) uses(backend string) bool {
	return c.ASR.Primary == backend || c.ASR.Fallback == backend || c.ASR.Summarizer == backend
}
