package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

var configDir string
var configFilePath string
var credentialsPath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\sidechain\chat
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "sidechain", "chat"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/sidechain/chat
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sidechain", "chat"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "Sidechain", "chat", "config.toml")}
	}

	return []string{
		"/etc/sidechain/chat/config.toml",
		"/usr/local/etc/sidechain/chat/config.toml",
	}
}

// Init initializes the configuration
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	credentialsPath = filepath.Join(configDir, "credentials")

	// Re-initialization must not inherit values read from a previous file
	viper.Reset()
	viper.SetConfigType("toml")

	setDefaults()

	// System config first, user config overrides it
	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			viper.SetConfigFile(sysConfigPath)
			_ = viper.ReadInConfig()
			break
		}
	}

	viper.SetConfigFile(configFilePath)
	_ = viper.ReadInConfig()

	return nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8787")
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("api.csrf_path", "")

	viper.SetDefault("ws.url", "ws://localhost:8787/api/v1/ws")

	viper.SetDefault("nats.url", "")
	viper.SetDefault("nats.subject_prefix", "sidechain.messaging")

	viper.SetDefault("messaging.page_size", 50)
	viper.SetDefault("messaging.max_message_length", 1000)

	viper.SetDefault("typing.idle_timeout", "3s")
	viper.SetDefault("typing.expiry", "5s")

	viper.SetDefault("render.emoji_base_url", "https://cdn.jsdelivr.net/gh/jdecked/twemoji@latest/assets/svg/")
	viper.SetDefault("render.shortcodes_file", "")

	viper.SetDefault("output.format", "text")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(configDir, "sidechain-chat.log"))

	viper.SetDefault("metrics.addr", "")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if key == "log.file" || key == "render.shortcodes_file" {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration configuration value ("3s", "500ms")
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// SetString sets a string configuration value for the current process.
func SetString(key string, value string) {
	viper.Set(key, value)
}

// Save writes the current configuration to the user config file.
func Save() error {
	return viper.WriteConfigAs(configFilePath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetCredentialsPath returns the path to the credentials file
func GetCredentialsPath() string {
	return credentialsPath
}
