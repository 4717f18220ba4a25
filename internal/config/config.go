package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

// Cfg is the process-wide configuration, loaded once at startup.
var Cfg *Config

type Config struct {
	LogLevel string `yaml:"logLevel"`
	LogDir   string `yaml:"logDir"`

	Bridge struct {
		URL              string `yaml:"url"`
		ReconnectDelayMs int    `yaml:"reconnectDelayMs"`
		HandshakeTimeout int    `yaml:"handshakeTimeoutMs"`
	} `yaml:"bridge"`

	Planner struct {
		BaseURL   string `yaml:"baseUrl"`
		Model     string `yaml:"model"`
		TimeoutMs int    `yaml:"timeoutMs"`
		// APIKey comes from the environment (PLANNER_API_KEY), never from YAML.
		APIKey string `yaml:"-"`
	} `yaml:"planner"`

	Health struct {
		CriticalHealth   int `yaml:"criticalHealth"`   // hp <= this is critical (of 20)
		RecoveredHealth  int `yaml:"recoveredHealth"`  // emergency resolves at hp >= this
		CriticalFood     int `yaml:"criticalFood"`     // food < this is critical (of 20)
		RecoveredFood    int `yaml:"recoveredFood"`    // hunger emergency resolves at food >= this
		MinDamageDelta   int `yaml:"minDamageDelta"`   // health drop below this is noise
		ThreatRadius     int `yaml:"threatRadius"`     // hostile scan radius in blocks
		FightHealthFloor int `yaml:"fightHealthFloor"` // below this hp we always flee
	} `yaml:"health"`

	Dispatcher struct {
		StatusUpdateIntervalMs int `yaml:"statusUpdateIntervalMs"`
		MaxQueueDepth          int `yaml:"maxQueueDepth"`
	} `yaml:"dispatcher"`

	Execution struct {
		DefaultActionTimeoutMs int `yaml:"defaultActionTimeoutMs"`
		MaxRetries             int `yaml:"maxRetries"`
		BackoffInitialMs       int `yaml:"backoffInitialMs"`
		BackoffMaxMs           int `yaml:"backoffMaxMs"`
	} `yaml:"execution"`

	Respawn struct {
		ItemRecoveryBudgetMs int `yaml:"itemRecoveryBudgetMs"` // matches item despawn timer
	} `yaml:"respawn"`

	Learning struct {
		DBPath           string  `yaml:"dbPath"`
		CategoryCapacity int     `yaml:"categoryCapacity"`
		EvictFraction    float64 `yaml:"evictFraction"`
	} `yaml:"learning"`

	Discord struct {
		Enabled   bool   `yaml:"enabled"`
		ChannelID string `yaml:"channelId"`
		// Token comes from the environment (DISCORD_TOKEN).
		Token string `yaml:"-"`
	} `yaml:"discord"`

	Telegram struct {
		Enabled bool  `yaml:"enabled"`
		ChatID  int64 `yaml:"chatId"`
		// Token comes from the environment (TELEGRAM_TOKEN).
		Token string `yaml:"-"`
	} `yaml:"telegram"`
}

func (c *Config) StatusUpdateInterval() time.Duration {
	return time.Duration(c.Dispatcher.StatusUpdateIntervalMs) * time.Millisecond
}

func (c *Config) DefaultActionTimeout() time.Duration {
	return time.Duration(c.Execution.DefaultActionTimeoutMs) * time.Millisecond
}

func (c *Config) ItemRecoveryBudget() time.Duration {
	return time.Duration(c.Respawn.ItemRecoveryBudgetMs) * time.Millisecond
}

// Load reads config.yaml from configDir, seeding the directory from the
// bundled template on first run. Secrets are always taken from the
// environment so they never end up in the YAML file.
func Load(configDir string) error {
	if configDir == "" {
		configDir = "config"
	}

	cfgPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := seedDefaults(configDir); err != nil {
			return err
		}
	}

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("error reading config %s: %w", cfgPath, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("error parsing config %s: %w", cfgPath, err)
	}

	cfg.Planner.APIKey = os.Getenv("PLANNER_API_KEY")
	cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")

	if v := os.Getenv("PLANNER_BASE_URL"); v != "" {
		cfg.Planner.BaseURL = v
	}
	if v := os.Getenv("PLANNER_MODEL"); v != "" {
		cfg.Planner.Model = v
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		cfg.Bridge.URL = v
	}

	Cfg = cfg
	return nil
}

// seedDefaults copies the bundled template directory into configDir so a
// fresh checkout starts with a working configuration.
func seedDefaults(configDir string) error {
	if err := os.MkdirAll(configDir, os.ModePerm); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tpl := "config.template"
	if _, err := os.Stat(tpl); os.IsNotExist(err) {
		// No template shipped alongside the binary, write built-in defaults.
		data, err := yaml.Marshal(defaultConfig())
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
	}

	return cp.Copy(tpl, configDir)
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.LogLevel = "info"
	cfg.LogDir = "logs"
	cfg.Bridge.URL = "ws://localhost:3080/agent"
	cfg.Bridge.ReconnectDelayMs = 3000
	cfg.Bridge.HandshakeTimeout = 10000
	cfg.Planner.BaseURL = "http://localhost:11434/v1"
	cfg.Planner.Model = "llama3.1"
	cfg.Planner.TimeoutMs = 120000
	cfg.Health.CriticalHealth = 6
	cfg.Health.RecoveredHealth = 15
	cfg.Health.CriticalFood = 10
	cfg.Health.RecoveredFood = 16
	cfg.Health.MinDamageDelta = 2
	cfg.Health.ThreatRadius = 16
	cfg.Health.FightHealthFloor = 10
	cfg.Dispatcher.StatusUpdateIntervalMs = 30000
	cfg.Dispatcher.MaxQueueDepth = 256
	cfg.Execution.DefaultActionTimeoutMs = 30000
	cfg.Execution.MaxRetries = 3
	cfg.Execution.BackoffInitialMs = 500
	cfg.Execution.BackoffMaxMs = 15000
	cfg.Respawn.ItemRecoveryBudgetMs = 300000
	cfg.Learning.DBPath = "data/learnings"
	cfg.Learning.CategoryCapacity = 200
	cfg.Learning.EvictFraction = 0.2
	return cfg
}
