package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	if cfg.Gateway.BasePath != "" && !strings.HasPrefix(cfg.Gateway.BasePath, "/") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.basePath",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.Gateway.BasePath),
		})
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Session validation
	if cfg.Session.TTLHours < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.ttlHours",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Session.TTLHours),
		})
	}
	if cfg.Session.MaxCartItems < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.maxCartItems",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Session.MaxCartItems),
		})
	}

	// Rate limit validation
	if cfg.RateLimit.DefaultRequestsPerMinute < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.defaultRequestsPerMinute",
			Message: fmt.Sprintf("must be positive, got %d", cfg.RateLimit.DefaultRequestsPerMinute),
		})
	}
	if cfg.RateLimit.DefaultOperationsPerHour < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "rateLimit.defaultOperationsPerHour",
			Message: fmt.Sprintf("must be positive, got %d", cfg.RateLimit.DefaultOperationsPerHour),
		})
	}

	if cfg.Context.MaxBytes < 0 || cfg.Context.MaxBytes > 64*1024 {
		issues = append(issues, ValidationIssue{
			Path:    "context.maxBytes",
			Message: fmt.Sprintf("must be 0-65536, got %d", cfg.Context.MaxBytes),
		})
	}

	// Commerce validation
	if cfg.Commerce.TaxRatePercent < 0 || cfg.Commerce.TaxRatePercent > 100 {
		issues = append(issues, ValidationIssue{
			Path:    "commerce.taxRatePercent",
			Message: fmt.Sprintf("must be 0-100, got %v", cfg.Commerce.TaxRatePercent),
		})
	}
	if cfg.Commerce.FreeShippingThreshold < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "commerce.freeShippingThreshold",
			Message: fmt.Sprintf("must not be negative, got %v", cfg.Commerce.FreeShippingThreshold),
		})
	}
	if c := cfg.Commerce.Currency; c != "" && len(c) != 3 {
		issues = append(issues, ValidationIssue{
			Path:    "commerce.currency",
			Message: fmt.Sprintf("must be an ISO 4217 code, got %q", c),
		})
	}

	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		issues = append(issues, ValidationIssue{
			Path:    "metrics.path",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.Metrics.Path),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Hooks validation
	hookLists := []struct {
		path    string
		entries []HookEntry
	}{
		{"hooks.gatewayStart", cfg.Hooks.GatewayStart},
		{"hooks.gatewayStop", cfg.Hooks.GatewayStop},
		{"hooks.agentCreated", cfg.Hooks.AgentCreated},
		{"hooks.sessionCreated", cfg.Hooks.SessionCreated},
		{"hooks.sessionDeleted", cfg.Hooks.SessionDeleted},
		{"hooks.orderPlaced", cfg.Hooks.OrderPlaced},
	}
	for _, hl := range hookLists {
		for i, h := range hl.entries {
			if strings.TrimSpace(h.Command) == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s[%d].command", hl.path, i),
					Message: "command is required",
				})
			}
			if h.Timeout < 0 {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s[%d].timeout", hl.path, i),
					Message: fmt.Sprintf("must not be negative, got %d", h.Timeout),
				})
			}
		}
	}

	return issues
}
