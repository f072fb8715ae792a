package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvAccessToken = "VK_ACCESS_TOKEN"
	EnvGroupID     = "VK_GROUP_ID"
)

// DefaultPath is used when LoadConfig is given no path.
var DefaultPath = filepath.Join(".graffitibot", "config.json")

type VKConfig struct {
	AccessToken string `json:"accessToken" yaml:"accessToken"`
	GroupID     int    `json:"groupId" yaml:"groupId"`
	APIVersion  string `json:"apiVersion" yaml:"apiVersion"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Wait is the long-poll wait in seconds. Long polls get a deadline of
	// Wait plus a fixed slack, independent of http.timeout.
	Wait int `json:"wait" yaml:"wait"`
}

type BotConfig struct {
	// FontPath points at a TTF/OTF file; empty uses the bundled Go Regular face.
	FontPath             string  `json:"fontPath" yaml:"fontPath"`
	DefaultCharacterSize float64 `json:"defaultCharacterSize" yaml:"defaultCharacterSize"`
	AllowFrom            []int   `json:"allowFrom" yaml:"allowFrom"`
}

type CacheConfig struct {
	Dir           string   `json:"dir" yaml:"dir"`
	SweepSchedule string   `json:"sweepSchedule" yaml:"sweepSchedule"`
	MaxAge        Duration `json:"maxAge" yaml:"maxAge"`
}

type LogConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	Level      string `json:"level" yaml:"level"`
	MaxSizeMB  int    `json:"maxSizeMb" yaml:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
}

type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `json:"addr" yaml:"addr"`
}

type HTTPConfig struct {
	// Timeout bounds ordinary API calls, downloads and uploads.
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

type Config struct {
	VK      VKConfig      `json:"vk" yaml:"vk"`
	Bot     BotConfig     `json:"bot" yaml:"bot"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		VK: VKConfig{
			APIVersion: "5.131",
			Wait:       25,
		},
		Bot: BotConfig{
			DefaultCharacterSize: 100,
		},
		Cache: CacheConfig{
			Dir:           filepath.Join(".graffitibot", "cache"),
			SweepSchedule: "@every 10m",
			MaxAge:        Duration(30 * time.Minute),
		},
		Log: LogConfig{
			Dir:        filepath.Join(".graffitibot", "logs"),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		HTTP: HTTPConfig{
			Timeout: Duration(time.Minute),
		},
	}
}

// LoadConfig loads the configuration from the given path. A missing file
// yields the defaults. Files ending in .yaml or .yml are read as YAML,
// everything else as JSON which may carry comments. Variables from a .env
// file next to the config (or in the working directory) are loaded before
// the environment overrides are applied.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, config); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	loadDotEnv(path)
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes cfg as indented JSON, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	if c.VK.AccessToken == "" {
		return fmt.Errorf("config: vk.accessToken is required (or set %s)", EnvAccessToken)
	}
	if c.VK.GroupID <= 0 {
		return fmt.Errorf("config: vk.groupId must be positive (or set %s)", EnvGroupID)
	}
	if c.VK.Wait <= 0 || c.VK.Wait > vkapi.MaxLongPollWait {
		return fmt.Errorf("config: vk.wait must be between 1 and %d seconds", vkapi.MaxLongPollWait)
	}
	if _, err := vkapi.ParseVersion(c.VK.APIVersion); err != nil {
		return fmt.Errorf("config: vk.apiVersion: %w", err)
	}
	if c.Bot.DefaultCharacterSize <= 0 {
		return fmt.Errorf("config: bot.defaultCharacterSize must be positive")
	}
	return nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(jsonc.ToJSON(data), config)
	}
}

func loadDotEnv(configPath string) {
	if err := godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		_ = godotenv.Load(".env")
	}
}

func applyEnv(config *Config) error {
	if token := os.Getenv(EnvAccessToken); token != "" {
		config.VK.AccessToken = token
	}
	if raw := os.Getenv(EnvGroupID); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvGroupID, err)
		}
		config.VK.GroupID = id
	}
	return nil
}
