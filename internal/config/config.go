package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Admin     AdminConfig     `yaml:"admin"`
	Engine    EngineConfig    `yaml:"engine"`
	Notify    NotifyConfig    `yaml:"notify"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type AuthConfig struct {
	SessionTTL         Duration `yaml:"session_ttl"`
	MaxSessionsPerUser int      `yaml:"max_sessions_per_user"`
	VerificationTTL    Duration `yaml:"verification_ttl"`
	ResetTTL           Duration `yaml:"reset_ttl"`
	InviteTTL          Duration `yaml:"invite_ttl"`
	BcryptCost         int      `yaml:"bcrypt_cost"`
	KeyEnv             string   `yaml:"key_env"`
}

type AdminConfig struct {
	KeyFile        string `yaml:"key_file"`
	BootstrapEmail string `yaml:"bootstrap_email"`
}

type EngineConfig struct {
	// BaseURL empty selects the in-process engine.
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// NotifyConfig controls account notice delivery. Notices are queued in the
// registry and retried with backoff until MaxAttempts is reached.
type NotifyConfig struct {
	WebhookURL       string   `yaml:"webhook_url"`
	WebhookSecret    string   `yaml:"webhook_secret"`
	Timeout          Duration `yaml:"timeout"`
	DispatchInterval Duration `yaml:"dispatch_interval"`
	BatchSize        int      `yaml:"batch_size"`
	MaxAttempts      int      `yaml:"max_attempts"`
}

// RateLimitConfig throttles the unauthenticated account routes per client IP.
// The client IP is the peer address unless TrustProxy is set, in which case
// X-Forwarded-For and X-Real-IP are honoured.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TrustProxy        bool    `yaml:"trust_proxy"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Duration reads Go duration strings such as "168h" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration(5 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Storage: StorageConfig{DataDir: "./data"},
		Auth: AuthConfig{
			SessionTTL:         Duration(7 * 24 * time.Hour),
			MaxSessionsPerUser: 2,
			VerificationTTL:    Duration(24 * time.Hour),
			ResetTTL:           Duration(time.Hour),
			InviteTTL:          Duration(7 * 24 * time.Hour),
			BcryptCost:         12,
			KeyEnv:             "live",
		},
		Engine: EngineConfig{Timeout: Duration(30 * time.Second)},
		Notify: NotifyConfig{
			Timeout:          Duration(5 * time.Second),
			DispatchInterval: Duration(2 * time.Second),
			BatchSize:        50,
			MaxAttempts:      5,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads the YAML file at path on top of Default. An empty path yields
// the defaults. ${VAR} references are expanded from the environment, which
// is first seeded from a .env file next to the config when one exists.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with its value; unset variables become "".
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if c.Auth.MaxSessionsPerUser < 1 {
		return errors.New("auth.max_sessions_per_user must be at least 1")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost %d out of range 4..31", c.Auth.BcryptCost)
	}
	switch c.Auth.KeyEnv {
	case "live", "test":
	default:
		return fmt.Errorf("auth.key_env %q must be live or test", c.Auth.KeyEnv)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return errors.New("ratelimit.requests_per_second and ratelimit.burst must be positive")
	}
	if c.Notify.DispatchInterval <= 0 || c.Notify.BatchSize < 1 || c.Notify.MaxAttempts < 1 {
		return errors.New("notify.dispatch_interval, notify.batch_size and notify.max_attempts must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return errors.New("metrics.path is required when metrics are enabled")
	}
	return nil
}

// AdminKeyPath defaults the admin key file into the data directory.
func (c Config) AdminKeyPath() string {
	if c.Admin.KeyFile != "" {
		return c.Admin.KeyFile
	}
	return filepath.Join(c.Storage.DataDir, "admin.key")
}
