package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns DATABASE_URL when set, otherwise a lib/pq key=value string.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type GeneratorConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	Mock    bool   `yaml:"mock"`
	UseCLI  bool   `yaml:"use_cli"`
	CLIPath string `yaml:"cli_path"`
}

type ConversionConfig struct {
	MinValidationScore float64       `yaml:"min_validation_score"`
	MaxAttempts        int           `yaml:"max_attempts"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	WorkerInterval     time.Duration `yaml:"worker_interval"`
	StuckAfter         time.Duration `yaml:"stuck_after"`
}

type Config struct {
	Port        string           `yaml:"port"`
	DB          DBConfig         `yaml:"database"`
	JWTSecret   string           `yaml:"-"`
	CORSOrigins []string         `yaml:"cors_origins"`
	RedisURL    string           `yaml:"redis_url"`
	Generator   GeneratorConfig  `yaml:"generator"`
	Conversion  ConversionConfig `yaml:"conversion"`
	// Manifests lists YAML import manifests the CLI applies by default.
	Manifests []string `yaml:"manifests"`
}

func Defaults() Config {
	return Config{
		Port: "8080",
		DB: DBConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "neuro_user",
			Password: "neuro_password",
			Name:     "neuro_mcq",
			SSLMode:  "disable",
		},
		JWTSecret:   "neuro-mcq-dev-signing-key",
		CORSOrigins: []string{"*"},
		Generator: GeneratorConfig{
			Model:   "claude-sonnet-4-5-20250929",
			CLIPath: "claude",
		},
		Conversion: ConversionConfig{
			MinValidationScore: 70,
			MaxAttempts:        5,
			CacheTTL:           time.Hour,
			WorkerInterval:     5 * time.Second,
			StuckAfter:         15 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by MCQ_CONFIG_FILE, and the environment, in that order of precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("MCQ_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv ignores any config file.
func FromEnv() Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)

	c.DB.URL = envOr("DATABASE_URL", c.DB.URL)
	c.DB.Host = envOr("DB_HOST", c.DB.Host)
	c.DB.Port = envOr("DB_PORT", c.DB.Port)
	c.DB.User = envOr("DB_USER", c.DB.User)
	c.DB.Password = envOr("DB_PASSWORD", c.DB.Password)
	c.DB.Name = envOr("DB_NAME", c.DB.Name)
	c.DB.SSLMode = envOr("DB_SSLMODE", c.DB.SSLMode)

	c.JWTSecret = envOr("JWT_SECRET", c.JWTSecret)
	c.CORSOrigins = csvOr("CORS_ORIGINS", c.CORSOrigins)
	c.RedisURL = envOr("REDIS_URL", c.RedisURL)

	c.Generator.APIKey = envOr("ANTHROPIC_API_KEY", c.Generator.APIKey)
	c.Generator.Model = envOr("ANTHROPIC_MODEL", c.Generator.Model)
	c.Generator.Mock = envBool("MOCK_GENERATOR", c.Generator.Mock)
	c.Generator.UseCLI = envBool("USE_CLI_GENERATOR", c.Generator.UseCLI)
	c.Generator.CLIPath = envOr("CLAUDE_CLI_PATH", c.Generator.CLIPath)

	c.Conversion.MinValidationScore = envFloat("CASE_MIN_VALIDATION_SCORE", c.Conversion.MinValidationScore)
	c.Conversion.MaxAttempts = envInt("CASE_MAX_ATTEMPTS", c.Conversion.MaxAttempts)
	c.Conversion.CacheTTL = envDuration("CASE_CACHE_TTL", c.Conversion.CacheTTL)
	c.Conversion.WorkerInterval = envDuration("CASE_WORKER_INTERVAL", c.Conversion.WorkerInterval)
	c.Conversion.StuckAfter = envDuration("CASE_STUCK_AFTER", c.Conversion.StuckAfter)
}

func (c Config) Validate() error {
	var problems []string
	if c.Conversion.MaxAttempts < 1 {
		problems = append(problems, "conversion max_attempts must be at least 1")
	}
	if c.Conversion.MinValidationScore < 0 || c.Conversion.MinValidationScore > 100 {
		problems = append(problems, "conversion min_validation_score must be within 0-100")
	}
	if c.Conversion.WorkerInterval <= 0 {
		problems = append(problems, "conversion worker_interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envOr(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func envFloat(k string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return v
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(k string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func csvOr(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
