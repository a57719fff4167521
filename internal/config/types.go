package config

// Config is the root configuration for the Mercora agent gateway.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	RateLimit RateLimitConfig `yaml:"rateLimit,omitempty"`
	Context   ContextConfig   `yaml:"context,omitempty"`
	Commerce  CommerceConfig  `yaml:"commerce,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the gateway HTTP server.
type GatewayConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	BasePath       string     `yaml:"basePath,omitempty"` // route prefix for the MCP surface, default "/mcp"
	TLS            GatewayTLS `yaml:"tls,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// DatabaseConfig selects the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"` // empty = <data dir>/mercora.db; ":memory:" for ephemeral
}

// SessionConfig defines shopping session behavior.
type SessionConfig struct {
	TTLHours        int `yaml:"ttlHours,omitempty"`
	SweepMinutes    int `yaml:"sweepMinutes,omitempty"` // negative disables the background sweep
	MaxCartItems    int `yaml:"maxCartItems,omitempty"`
	MaxLineQuantity int `yaml:"maxLineQuantity,omitempty"`
}

// RateLimitConfig holds defaults applied to newly created agents.
type RateLimitConfig struct {
	DefaultRequestsPerMinute int `yaml:"defaultRequestsPerMinute,omitempty"`
	DefaultOperationsPerHour int `yaml:"defaultOperationsPerHour,omitempty"`
}

// ContextConfig bounds the X-Agent-Context header.
type ContextConfig struct {
	MaxBytes int `yaml:"maxBytes,omitempty"`
}

// CommerceConfig holds checkout arithmetic parameters.
type CommerceConfig struct {
	Currency              string  `yaml:"currency,omitempty"`
	TaxRatePercent        float64 `yaml:"taxRatePercent,omitempty"`
	FreeShippingThreshold float64 `yaml:"freeShippingThreshold,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig lists shell commands run on lifecycle events.
type HooksConfig struct {
	GatewayStart   []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop    []HookEntry `yaml:"gatewayStop,omitempty"`
	AgentCreated   []HookEntry `yaml:"agentCreated,omitempty"`
	SessionCreated []HookEntry `yaml:"sessionCreated,omitempty"`
	SessionDeleted []HookEntry `yaml:"sessionDeleted,omitempty"`
	OrderPlaced    []HookEntry `yaml:"orderPlaced,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
