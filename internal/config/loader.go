package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandPathFields processes environment variable references in filesystem
// paths so deployments can point them at ${STATE_DIRECTORY} and friends.
func expandPathFields(cfg *Config) {
	cfg.Database.Path = expandEnvVars(cfg.Database.Path)
	cfg.Logging.File = expandEnvVars(cfg.Logging.File)
	cfg.Gateway.TLS.CertPath = expandEnvVars(cfg.Gateway.TLS.CertPath)
	cfg.Gateway.TLS.KeyPath = expandEnvVars(cfg.Gateway.TLS.KeyPath)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandPathFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.BasePath == "" {
		cfg.Gateway.BasePath = "/mcp"
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = 24
	}
	if cfg.Session.SweepMinutes == 0 {
		cfg.Session.SweepMinutes = 15
	}
	if cfg.Session.MaxCartItems == 0 {
		cfg.Session.MaxCartItems = 100
	}
	if cfg.Session.MaxLineQuantity == 0 {
		cfg.Session.MaxLineQuantity = 999
	}
	if cfg.RateLimit.DefaultRequestsPerMinute == 0 {
		cfg.RateLimit.DefaultRequestsPerMinute = 100
	}
	if cfg.RateLimit.DefaultOperationsPerHour == 0 {
		cfg.RateLimit.DefaultOperationsPerHour = 10
	}
	if cfg.Context.MaxBytes == 0 {
		cfg.Context.MaxBytes = 1024
	}
	if cfg.Commerce.Currency == "" {
		cfg.Commerce.Currency = "USD"
	}
	if cfg.Commerce.TaxRatePercent == 0 {
		cfg.Commerce.TaxRatePercent = 8.25
	}
	if cfg.Commerce.FreeShippingThreshold == 0 {
		cfg.Commerce.FreeShippingThreshold = 75
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads MERCORA_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MERCORA_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("MERCORA_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("MERCORA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MERCORA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
