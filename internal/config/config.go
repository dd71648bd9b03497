// Package config loads approveflow settings.
//
// Precedence: defaults < config file (TOML) < env (APPROVEFLOW_*) < flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, for example APPROVEFLOW_SERVER_DOMAIN.
const EnvPrefix = "APPROVEFLOW"

// FileName is the config file looked up when no path is given.
const FileName = "approveflow.toml"

// Config is the full configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server" json:"server"`
	Business BusinessConfig `toml:"business" mapstructure:"business" json:"business"`
	Workbook WorkbookConfig `toml:"workbook" mapstructure:"workbook" json:"workbook"`
	Database DatabaseConfig `toml:"database" mapstructure:"database" json:"database"`
	Labels   LabelsConfig   `toml:"labels" mapstructure:"labels" json:"labels"`
	Random   RandomConfig   `toml:"random" mapstructure:"random" json:"random"`
	Log      LogConfig      `toml:"log" mapstructure:"log" json:"log"`
	Accounts []Account      `toml:"accounts" mapstructure:"accounts" json:"accounts"`
}

// ServerConfig locates the CRM under test.
type ServerConfig struct {
	Domain  string        `toml:"domain" mapstructure:"domain" json:"domain"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout" json:"timeout"`
}

// BusinessConfig selects what is approved.
type BusinessConfig struct {
	Kind string `toml:"kind" mapstructure:"kind" json:"kind"`
	// Levels selects the workbook sheet, for example 2 for "2级审批".
	Levels int `toml:"levels" mapstructure:"levels" json:"levels"`
}

type WorkbookConfig struct {
	Path string `toml:"path" mapstructure:"path" json:"path"`
}

type DatabaseConfig struct {
	Path string `toml:"path" mapstructure:"path" json:"path"`
}

// LabelsConfig picks the status label language the CRM renders.
type LabelsConfig struct {
	Locale string `toml:"locale" mapstructure:"locale" json:"locale"`
}

// RandomConfig seeds actor selection; 0 means unseeded.
type RandomConfig struct {
	Seed uint64 `toml:"seed" mapstructure:"seed" json:"seed"`
}

type LogConfig struct {
	Level string `toml:"level" mapstructure:"level" json:"level"`
}

// Account holds login credentials for one CRM user.
type Account struct {
	Authority string `toml:"authority" mapstructure:"authority" json:"authority"`
	Phone     string `toml:"phone" mapstructure:"phone" json:"phone"`
	Password  string `toml:"password" mapstructure:"password" json:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Domain:  "http://localhost:3000",
			Timeout: 30 * time.Second,
		},
		Business: BusinessConfig{Kind: "customer", Levels: 1},
		Workbook: WorkbookConfig{Path: "testcases.xlsx"},
		Database: DatabaseConfig{Path: filepath.Join(".approveflow", "state.db")},
		Labels:   LabelsConfig{Locale: "en"},
		Log:      LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server.domain", d.Server.Domain)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("business.kind", d.Business.Kind)
	v.SetDefault("business.levels", d.Business.Levels)
	v.SetDefault("workbook.path", d.Workbook.Path)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("labels.locale", d.Labels.Locale)
	v.SetDefault("random.seed", d.Random.Seed)
	v.SetDefault("log.level", d.Log.Level)
}

// Load reads configuration from path, or from FileName in the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "approveflow"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.Business.Levels < 1 {
		return fmt.Errorf("business.levels must be at least 1, got %d", c.Business.Levels)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative, got %s", c.Server.Timeout)
	}
	if _, err := core.LabelsFor(c.Labels.Locale); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Phone == "" {
			return fmt.Errorf("accounts[%d]: phone is required", i)
		}
		if seen[a.Phone] {
			return fmt.Errorf("accounts[%d]: duplicate phone %s", i, a.Phone)
		}
		seen[a.Phone] = true
	}
	return nil
}

// LogLevel parses log.level.
func (c Config) LogLevel() (log.Level, error) {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Password returns the configured password for phone.
func (c Config) Password(phone string) (string, bool) {
	for _, a := range c.Accounts {
		if a.Phone == phone {
			return a.Password, true
		}
	}
	return "", false
}

// WriteDefault writes the default configuration to path. An existing file
// is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := `# approveflow configuration
#
# Precedence: defaults < this file < env (APPROVEFLOW_*) < flags
# Add one [[accounts]] table per CRM user (authority, phone, password).

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	cfg := DefaultConfig()
	cfg.Accounts = []Account{
		{Authority: core.RoleAdmin, Phone: "13800000000", Password: "changeme"},
	}
	enc := toml.NewEncoder(f)
	enc.Indent = "  "
	return enc.Encode(cfg)
}
