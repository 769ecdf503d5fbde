package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/tasksync/internal/domain"
)

const (
	localStateDir      = ".tasksync"
	defaultPlannerPath = ".taskmaster/tasks/tasks.json"
)

// Config represents the application configuration
type Config struct {
	StateDBPath           string   `yaml:"state_db_path"`
	BacklogDBPath         string   `yaml:"backlog_db_path"`
	PlannerPath           string   `yaml:"planner_path"`
	PlannerTag            string   `yaml:"planner_tag"`
	DefaultProject        string   `yaml:"default_project"`
	SyncIntervalSeconds   int      `yaml:"sync_interval_seconds"`
	Strategy              string   `yaml:"strategy"`
	ConflictWindowSeconds int      `yaml:"conflict_window_seconds"`
	TombstoneTTLHours     int      `yaml:"tombstone_ttl_hours"`
	Jobs                  int      `yaml:"jobs"`
	WebhookURLs           []string `yaml:"webhook_urls"`
	LogLevel              string   `yaml:"log_level"`
	Output                string   `yaml:"output"`
}

// Defaults returns the configuration used when nothing else is set. Paths
// are resolved later by Load.
func Defaults() *Config {
	return &Config{
		PlannerTag:            "master",
		DefaultProject:        "inbox",
		SyncIntervalSeconds:   60,
		Strategy:              string(domain.StrategyLatestTimestamp),
		ConflictWindowSeconds: 300,
		TombstoneTTLHours:     720,
		Jobs:                  1,
		LogLevel:              "info",
		Output:                "table",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/tasksync/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := Defaults()

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if path, err := userConfigPath(); err == nil {
		if err := loadYAMLConfig(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if err := domain.ValidateStrategy(domain.Strategy(c.Strategy)); err != nil {
		return err
	}
	if c.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("sync_interval_seconds must be positive, got %d", c.SyncIntervalSeconds)
	}
	if c.ConflictWindowSeconds < 0 {
		return fmt.Errorf("conflict_window_seconds must not be negative, got %d", c.ConflictWindowSeconds)
	}
	if c.TombstoneTTLHours < 0 {
		return fmt.Errorf("tombstone_ttl_hours must not be negative, got %d", c.TombstoneTTLHours)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// SyncInterval returns the daemon interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// ConflictWindow returns the window within which two edits conflict.
func (c *Config) ConflictWindow() time.Duration {
	return time.Duration(c.ConflictWindowSeconds) * time.Second
}

// TombstoneTTL returns how long tombstones are kept. Zero keeps them forever.
func (c *Config) TombstoneTTL() time.Duration {
	return time.Duration(c.TombstoneTTLHours) * time.Hour
}

// Debug reports whether per-task decision logging is on.
func (c *Config) Debug() bool {
	return c.LogLevel == "debug"
}

// LockPath is the lock file held for the duration of a sync, import or
// daemon run.
func (c *Config) LockPath() string {
	return c.StateDBPath + ".lock"
}

// loadYAMLConfig loads configuration from path
func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func userConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "tasksync", "config.yaml"), nil
}

func applyEnv(cfg *Config) error {
	if v := getEnvOrFile("TASKSYNC_STATE_DB_PATH", "TASKSYNC_STATE_DB_PATH_FILE"); v != "" {
		cfg.StateDBPath = v
	}
	if v := getEnvOrFile("TASKSYNC_BACKLOG_DB_PATH", "TASKSYNC_BACKLOG_DB_PATH_FILE"); v != "" {
		cfg.BacklogDBPath = v
	}
	if v := getEnvOrFile("TASKSYNC_PLANNER_PATH", "TASKSYNC_PLANNER_PATH_FILE"); v != "" {
		cfg.PlannerPath = v
	}
	if v := os.Getenv("TASKSYNC_PLANNER_TAG"); v != "" {
		cfg.PlannerTag = v
	}
	if v := os.Getenv("TASKSYNC_DEFAULT_PROJECT"); v != "" {
		cfg.DefaultProject = v
	}
	if v := os.Getenv("TASKSYNC_STRATEGY"); v != "" {
		cfg.Strategy = v
	}
	if v := os.Getenv("TASKSYNC_WEBHOOK_URLS"); v != "" {
		cfg.WebhookURLs = splitList(v)
	}
	if v := os.Getenv("TASKSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TASKSYNC_OUTPUT"); v != "" {
		cfg.Output = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"TASKSYNC_SYNC_INTERVAL_SECONDS", &cfg.SyncIntervalSeconds},
		{"TASKSYNC_CONFLICT_WINDOW_SECONDS", &cfg.ConflictWindowSeconds},
		{"TASKSYNC_TOMBSTONE_TTL_HOURS", &cfg.TombstoneTTLHours},
		{"TASKSYNC_JOBS", &cfg.Jobs},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", e.name, v)
		}
		*e.dst = n
	}
	return nil
}

// resolvePaths fills unset paths. A project-local .tasksync directory wins
// over the user-global data directory.
func (c *Config) resolvePaths() error {
	if c.StateDBPath == "" || c.BacklogDBPath == "" {
		dir := localStateDir
		if _, err := os.Stat(dir); err != nil {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(homeDir, ".local", "share", "tasksync")
		}
		if c.StateDBPath == "" {
			c.StateDBPath = filepath.Join(dir, "state.db")
		}
		if c.BacklogDBPath == "" {
			c.BacklogDBPath = filepath.Join(dir, "backlog.db")
		}
	}
	if c.PlannerPath == "" {
		c.PlannerPath = defaultPlannerPath
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
