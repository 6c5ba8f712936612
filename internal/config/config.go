// Package config loads the tool configuration.
//
// Precedence, lowest to highest: built-in defaults, config.toml at the
// data root, then TASKIT_* environment variables (dots become
// underscores, e.g. TASKIT_SYNC_REMOTE).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up at the data root.
const FileName = "config.toml"

// Config is the resolved configuration.
type Config struct {
	// RootDir is the repository holding the task collection.
	RootDir string `mapstructure:"root_dir"`

	// TasksDir is the subdirectory of RootDir holding the record files.
	TasksDir string `mapstructure:"tasks_dir"`

	Sync  Sync  `mapstructure:"sync"`
	Query Query `mapstructure:"query"`
	Log   Log   `mapstructure:"log"`
}

// Sync configures synchronization with the remote.
type Sync struct {
	// Remote is the remote name to fetch from and push to.
	Remote string `mapstructure:"remote"`

	// Strategy picks conflict resolution: local, remote, or field.
	Strategy string `mapstructure:"strategy"`

	// Retries and Backoff bound the retry loop for transient failures.
	Retries int           `mapstructure:"retries"`
	Backoff time.Duration `mapstructure:"backoff"`

	// Username and Token authenticate http(s) remotes; SSHKey points at
	// a private key for ssh remotes.
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
	SSHKey   string `mapstructure:"ssh_key"`
}

// Query configures the filter engine.
type Query struct {
	// FuzzyThreshold is the minimum score for fuzzy description matches.
	FuzzyThreshold int `mapstructure:"fuzzy_threshold"`
}

// Log configures the log sink.
type Log struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level"`

	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file"`

	// MaxSizeMB and MaxBackups bound rotation of the log file.
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
}

// TasksPath returns the absolute directory holding the record files.
func (c Config) TasksPath() string {
	return filepath.Join(c.RootDir, c.TasksDir)
}

// Load resolves the configuration. An absent config file is fine; a
// malformed one is an error.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("root_dir", defaultRoot())
	v.SetDefault("tasks_dir", "tasks")
	v.SetDefault("sync.remote", "origin")
	v.SetDefault("sync.strategy", "field")
	v.SetDefault("sync.retries", 3)
	v.SetDefault("sync.backoff", time.Second)
	v.SetDefault("query.fuzzy_threshold", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetEnvPrefix("TASKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The root may come from the environment, and the root decides where
	// the config file lives.
	root := v.GetString("root_dir")
	v.SetConfigFile(filepath.Join(root, FileName))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

// defaultRoot is ~/.taskit, falling back to a relative directory when
// the home directory cannot be determined.
func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskit"
	}
	return filepath.Join(home, ".taskit")
}
