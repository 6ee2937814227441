package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	DatabasePath string `yaml:"database_path"`
	DataDir      string `yaml:"data_dir"`
	DefaultUser  string `yaml:"default_user"`
	DefaultPass  string `yaml:"default_pass"`

	Server ServerConfig `yaml:"server"`
	Queue  QueueConfig  `yaml:"queue"`
}

// ServerConfig describes the supervised game server process.
type ServerConfig struct {
	Game       string   `yaml:"game"`    // adapter name: minecraft, vintagestory
	Runtime    string   `yaml:"runtime"` // "process" or "container"
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
	Workdir    string   `yaml:"workdir"`

	AutoRestart  bool          `yaml:"auto_restart"`
	RestartDelay time.Duration `yaml:"restart_delay"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	Container ContainerConfig `yaml:"container"`
}

// ContainerConfig applies when Runtime is "container".
type ContainerConfig struct {
	Image       string            `yaml:"image"`
	Name        string            `yaml:"name"`
	Env         map[string]string `yaml:"env"`
	Binds       map[string]string `yaml:"binds"` // host path -> container path
	MemoryLimit string            `yaml:"memory_limit"`
}

type QueueConfig struct {
	DrainInterval   time.Duration `yaml:"drain_interval"`
	CaptureWindow   time.Duration `yaml:"capture_window"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Load reads the YAML config file (missing file means defaults) and applies
// STOKER_* environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:  ":8080",
		DefaultUser: "admin",
		DefaultPass: "admin",
		Server: ServerConfig{
			Game:         "minecraft",
			Runtime:      "process",
			Executable:   "java",
			Args:         []string{"-Xmx2G", "-jar", "server.jar", "--nogui"},
			Workdir:      ".",
			AutoRestart:  true,
			RestartDelay: 5 * time.Second,
			StopTimeout:  30 * time.Second,
			ReadyTimeout: 90 * time.Second,
		},
		Queue: QueueConfig{
			DrainInterval:   500 * time.Millisecond,
			CaptureWindow:   2 * time.Second,
			Retention:       24 * time.Hour,
			CleanupInterval: time.Hour,
		},
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.DataDir = envOr("STOKER_DATA_DIR", valueOr(cfg.DataDir, "./data"))
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	cfg.ListenAddr = envOr("STOKER_LISTEN", cfg.ListenAddr)
	cfg.DatabasePath = envOr("STOKER_DB", valueOr(cfg.DatabasePath, filepath.Join(cfg.DataDir, "stoker.db")))
	cfg.DefaultUser = envOr("STOKER_DEFAULT_USER", cfg.DefaultUser)
	cfg.DefaultPass = envOr("STOKER_DEFAULT_PASS", cfg.DefaultPass)
	cfg.Server.Executable = envOr("STOKER_SERVER_EXECUTABLE", cfg.Server.Executable)
	cfg.Server.Workdir = envOr("STOKER_SERVER_WORKDIR", cfg.Server.Workdir)

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
