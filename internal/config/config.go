package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataDir       string `json:"data_dir" mapstructure:"data_dir"`
	LogLevel      string `json:"log_level" mapstructure:"log_level"`
	MaxConcurrent int    `json:"max_concurrent" mapstructure:"max_concurrent"`
	// Store selects the chat store: "file" or "sqlite".
	Store string `json:"store" mapstructure:"store"`
	// UserID is the identity chats are saved under. Empty means anonymous:
	// nothing is persisted.
	UserID string `json:"user_id" mapstructure:"user_id"`
	// ToolLatency is the simulated work time of tools, e.g. "1s".
	ToolLatency string `json:"tool_latency" mapstructure:"tool_latency"`
	LLM         struct {
		BaseURL          string  `json:"base_url" mapstructure:"base_url"`
		APIKey           string  `json:"api_key" mapstructure:"api_key" secret:"true"`
		Model            string  `json:"model" mapstructure:"model"`
		MaxTokens        int     `json:"max_tokens" mapstructure:"max_tokens"`
		Temperature      float32 `json:"temperature" mapstructure:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens" mapstructure:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve" mapstructure:"output_reserve"`
	} `json:"llm" mapstructure:"llm"`
	Telegram struct {
		Token string `json:"token" mapstructure:"token" secret:"true"`
	} `json:"telegram" mapstructure:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled" mapstructure:"enabled"`
		Listen  string `json:"listen" mapstructure:"listen"`
	} `json:"http" mapstructure:"http"`
	Reminders struct {
		Enabled  bool   `json:"enabled" mapstructure:"enabled"`
		Schedule string `json:"schedule" mapstructure:"schedule"`
	} `json:"reminders" mapstructure:"reminders"`
}

// Latency parses ToolLatency. Invalid or negative values mean no delay.
func (c *Config) Latency() time.Duration {
	d, err := time.ParseDuration(c.ToolLatency)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// DefaultPath returns ~/.bookbot/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".bookbot", "config.json")
}

// envBindings maps config keys to the environment variables that override
// them.
var envBindings = map[string]string{
	"llm.api_key":    "OPENAI_API_KEY",
	"llm.base_url":   "OPENAI_BASE_URL",
	"telegram.token": "TELEGRAM_BOT_TOKEN",
	"user_id":        "BOOKBOT_USER_ID",
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".bookbot"))
	v.SetDefault("log_level", "info")
	v.SetDefault("max_concurrent", 2)
	v.SetDefault("store", "file")
	v.SetDefault("user_id", "")
	v.SetDefault("tool_latency", "1s")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_context_tokens", 16000)
	v.SetDefault("llm.output_reserve", 2000)
	v.SetDefault("telegram.token", "")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:8080")
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.schedule", "0 8 * * *")
}

// Load reads the config file at path. Precedence is defaults, then the
// file, then environment variables. A missing file is created with the
// defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if os.IsNotExist(err) {
		defaults := &Config{}
		if err := v.Unmarshal(defaults); err != nil {
			return nil, fmt.Errorf("decode default config: %w", err)
		}
		if err := Save(path, defaults); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	// Environment is bound after the defaults are written so secrets from
	// the environment never end up in the file.
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, atomically.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to the nested map form it has on disk.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as a flat key → value map, with secrets masked
// when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("load config values: %w", err)
	}
	flat := make(map[string]any, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		flat[key] = v.Get(key)
	}
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads a single dot-separated key from the config file, creating
// the file with defaults first if it does not exist.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v.Get(key), nil
}

// SetValue sets a dot-separated Config key in the config file. raw is stored
// as JSON when it parses as JSON (numbers, booleans) and as a string
// otherwise. The file must already exist.
func SetValue(path, key, raw string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var value any = raw
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		value = parsed
	}
	v.Set(key, value)

	out, err := json.MarshalIndent(v.AllSettings(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, out)
}
