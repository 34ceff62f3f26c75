package logger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// LoggerConfig represents an optional standalone logger configuration
// file with per-environment and per-module overrides.
type LoggerConfig struct {
	Logger       Config                       `yaml:"logger"`
	Environments map[string]EnvironmentConfig `yaml:"environments"`
	Modules      map[string]ModuleConfig      `yaml:"modules"`
}

// EnvironmentConfig represents environment-specific overrides
type EnvironmentConfig struct {
	Logger Config `yaml:"logger"`
}

// ModuleConfig represents module-specific overrides
type ModuleConfig struct {
	Level        LogLevel `yaml:"level"`
	SeparateFile bool     `yaml:"separate_file"`
	Filename     string   `yaml:"filename"`
}

// LoadConfig loads and validates a logger configuration file.
func LoadConfig(configPath string) (*LoggerConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config LoggerConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// LoadConfigForEnvironment resolves the effective config for one environment.
func LoadConfigForEnvironment(configPath, environment string) (*Config, error) {
	loggerConfig, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	config := loggerConfig.Logger
	if envConfig, exists := loggerConfig.Environments[environment]; exists {
		mergeConfigs(&config, &envConfig.Logger)
	}
	return &config, nil
}

func validateConfig(config *LoggerConfig) error {
	validLevels := map[LogLevel]bool{
		"": true, LevelTrace: true, LevelDebug: true, LevelInfo: true,
		LevelWarn: true, LevelError: true, LevelFatal: true, LevelPanic: true,
	}
	if !validLevels[config.Logger.Level] {
		return fmt.Errorf("invalid log level: %s", config.Logger.Level)
	}

	validFormats := map[LogFormat]bool{"": true, FormatJSON: true, FormatText: true}
	if !validFormats[config.Logger.Format] {
		return fmt.Errorf("invalid log format: %s", config.Logger.Format)
	}

	validOutputs := map[string]bool{"": true, "stdout": true, "stderr": true, "file": true}
	if !validOutputs[config.Logger.Output] {
		return fmt.Errorf("invalid output target: %s", config.Logger.Output)
	}

	if config.Logger.Output == "file" && config.Logger.Filename == "" {
		return fmt.Errorf("filename is required when output is 'file'")
	}
	return nil
}

func applyDefaults(config *LoggerConfig) {
	if config.Logger.Level == "" {
		config.Logger.Level = LevelInfo
	}
	if config.Logger.Format == "" {
		config.Logger.Format = FormatJSON
	}
	if config.Logger.Output == "" {
		config.Logger.Output = "stdout"
	}
	if config.Logger.MaxSize == 0 {
		config.Logger.MaxSize = 100
	}
	if config.Logger.MaxAge == 0 {
		config.Logger.MaxAge = 30
	}
	if config.Logger.MaxBackups == 0 {
		config.Logger.MaxBackups = 10
	}
}

func mergeConfigs(base *Config, override *Config) {
	if override.Level != "" {
		base.Level = override.Level
	}
	if override.Format != "" {
		base.Format = override.Format
	}
	if override.Output != "" {
		base.Output = override.Output
	}
	if override.Filename != "" {
		base.Filename = override.Filename
	}
	if override.MaxSize != 0 {
		base.MaxSize = override.MaxSize
	}
	if override.MaxAge != 0 {
		base.MaxAge = override.MaxAge
	}
	if override.MaxBackups != 0 {
		base.MaxBackups = override.MaxBackups
	}
	// Booleans always follow the override; false is a valid setting.
	base.Compress = override.Compress
	base.Caller = override.Caller
	base.Timestamp = override.Timestamp
}

// CreateModuleLogger builds a logger for one pipeline component, honoring
// module-level overrides from the config file.
func CreateModuleLogger(loggerConfig *LoggerConfig, moduleName string) Logger {
	config := loggerConfig.Logger

	if moduleConfig, exists := loggerConfig.Modules[moduleName]; exists {
		if moduleConfig.Level != "" {
			config.Level = moduleConfig.Level
		}
		if moduleConfig.SeparateFile && moduleConfig.Filename != "" {
			config.Output = "file"
			config.Filename = moduleConfig.Filename
		}
	}

	return NewLogger(config).WithField("module", moduleName)
}

// InitFromConfig initializes the global logger from a config file.
func InitFromConfig(configPath string) error {
	config, err := LoadConfigForEnvironment(configPath, getEnvironment())
	if err != nil {
		return fmt.Errorf("failed to load logger config: %w", err)
	}

	Init(*config)
	return nil
}

func getEnvironment() string {
	env := os.Getenv("SIGFLOW_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}
