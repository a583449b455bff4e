package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DataDirectory             string        `koanf:"data_directory"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`
	FrontendURL               string        `koanf:"frontend_url"`
	Hostname                  string        `koanf:"-"`
	LibraryRootDirectory      string        `koanf:"library_root_directory"`
	MonitorDebounce           time.Duration `koanf:"monitor_debounce"`
	MonitorResumeDelay        time.Duration `koanf:"monitor_resume_delay"`
	ScanIntervalMinutes       int           `koanf:"scan_interval_minutes"`
	ServerHost                string        `koanf:"server_host"`
	ServerPort                int           `koanf:"server_port"`
	WorkerProcesses           int           `koanf:"worker_processes"`
}

const configFileENV = "CONFIG_FILE"
const defaultConfigFile = "./data/config.yaml"

// New loads configuration in three layers: defaults, then an optional YAML
// config file (CONFIG_FILE, default ./data/config.yaml), then environment
// variables. Environment variables use the uppercased form of the file keys,
// e.g. library_root_directory becomes LIBRARY_ROOT_DIRECTORY.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DataDirectory:             "./data",
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        3,
		Hostname:                  hostname,
		MonitorDebounce:           2 * time.Second,
		MonitorResumeDelay:        time.Second,
		ScanIntervalMinutes:       60,
		ServerHost:                "0.0.0.0",
		ServerPort:                6161,
		WorkerProcesses:           2,
	}

	k := koanf.New(".")

	path := os.Getenv(configFileENV)
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	err = k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if cfg.LibraryRootDirectory == "" {
		return nil, missingRequired("LibraryRootDirectory")
	}
	if cfg.DatabaseFilePath == "" {
		cfg.DatabaseFilePath = filepath.Join(cfg.DataDirectory, "strata.sqlite")
	}

	return cfg, nil
}

// NewForTest returns a config suitable for tests: in-memory database and
// fast monitor timings.
func NewForTest() *Config {
	return &Config{
		DataDirectory:             "./tmp",
		DatabaseBusyTimeout:       time.Second,
		DatabaseConnectRetryCount: 1,
		DatabaseConnectRetryDelay: 10 * time.Millisecond,
		DatabaseFilePath:          ":memory:",
		DatabaseMaxRetries:        3,
		Hostname:                  "test",
		LibraryRootDirectory:      "./tmp/library",
		MonitorDebounce:           50 * time.Millisecond,
		MonitorResumeDelay:        25 * time.Millisecond,
		ScanIntervalMinutes:       60,
		ServerHost:                "127.0.0.1",
		WorkerProcesses:           1,
	}
}

func missingRequired(field string) error {
	snake := strcase.ToSnake(field)
	return errors.Errorf("missing required config: %s (%s)", strings.ToUpper(snake), snake)
}
