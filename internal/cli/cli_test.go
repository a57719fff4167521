package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/soyeahso/mercora/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupHome points the CLI at a fresh home directory.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MERCORA_HOME", home)
	t.Setenv("MERCORA_DB_PATH", "")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "mercora %v", args)
	return out
}

func TestVersionCmd(t *testing.T) {
	setupHome(t)
	assert.Contains(t, mustRun(t, "version"), version.Version)
}

func TestConfigCmds(t *testing.T) {
	home := setupHome(t)

	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", mustRun(t, "config", "path"))

	assert.Equal(t, "Set gateway.port = 19000\n", mustRun(t, "config", "set", "gateway.port", "19000"))
	assert.Equal(t, "19000\n", mustRun(t, "config", "get", "gateway.port"))

	mustRun(t, "config", "set", "commerce.taxRatePercent", "7.5")
	cfg, err := config.Load(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 19000, cfg.Gateway.Port)
	assert.InDelta(t, 7.5, cfg.Commerce.TaxRatePercent, 1e-9)

	out := mustRun(t, "config", "get", "gateway")
	assert.Contains(t, out, "port: 19000")

	assert.Equal(t, "Unset gateway.port\n", mustRun(t, "config", "unset", "gateway.port"))
	_, err = run(t, "config", "get", "gateway.port")
	assert.ErrorContains(t, err, "not found")
	_, err = run(t, "config", "unset", "gateway.port")
	assert.ErrorContains(t, err, "not found")

	assert.Equal(t, "Config OK\n", mustRun(t, "config", "validate"))
	mustRun(t, "config", "set", "gateway.bind", "everywhere")
	_, err = run(t, "config", "validate")
	assert.ErrorContains(t, err, "1 issue")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("TRUE"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, 8.25, parseValue("8.25"))
	assert.Equal(t, "loopback", parseValue("loopback"))
	assert.Equal(t, "12abc", parseValue("12abc"))
}

func TestAgentCmds(t *testing.T) {
	setupHome(t)

	out := mustRun(t, "agent", "create", "shop-bot", "--name", "Shop Bot", "--permissions", "search,cart", "--rpm", "30")
	assert.Contains(t, out, "Agent:       shop-bot (Shop Bot)")
	assert.Contains(t, out, "Permissions: search,cart")
	assert.Contains(t, out, "Limits:      30/min, 10 orders/hour")
	assert.Regexp(t, regexp.MustCompile(`API key:\s+mcp_\S+`), out)

	_, err := run(t, "agent", "create", "shop-bot")
	assert.ErrorContains(t, err, "already exists")
	_, err = run(t, "agent", "create", "x")
	assert.Error(t, err)

	mustRun(t, "agent", "create", "ops-bot")
	out = mustRun(t, "agent", "list")
	assert.Contains(t, out, "shop-bot")
	assert.Contains(t, out, "ops-bot")
	assert.Contains(t, out, "Page 1 of 1 (2 agents)")

	assert.Equal(t, "Agent shop-bot is now inactive\n", mustRun(t, "agent", "deactivate", "shop-bot"))
	assert.Equal(t, "Agent shop-bot is already inactive\n", mustRun(t, "agent", "deactivate", "shop-bot"))
	assert.Contains(t, mustRun(t, "agent", "list"), "inactive")
	assert.Equal(t, "Agent shop-bot is now active\n", mustRun(t, "agent", "activate", "shop-bot"))

	_, err = run(t, "agent", "deactivate", "ghost")
	assert.Error(t, err)
	_, err = run(t, "agent", "list", "--page", "0")
	assert.Error(t, err)
}

func TestAgentListEmpty(t *testing.T) {
	setupHome(t)
	assert.Equal(t, "No agents registered.\n", mustRun(t, "agent", "list"))
}

const catalogCSV = "id,name,slug,categories,price,sale_price,on_sale,short_description,long_description,tags,use_cases,attributes,ai_notes,brand\n" +
	"headlamp,Beam Headlamp,,Lighting,3999,,0,,,camping,hiking,,,Lumen\n" +
	"stove,Pocket Stove,,Cooking,5999,4499,1,,,camping,,,,Ember\n" +
	"broken,Broken Row,,Misc,not-a-price,,0,,,,,,,\n"

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(catalogCSV), 0o600))
	return path
}

func TestCatalogCmds(t *testing.T) {
	setupHome(t)

	out := mustRun(t, "catalog", "import", writeCatalog(t), "--default-stock", "12")
	assert.Equal(t, "Imported 2 product(s), skipped 1\n", out)

	out = mustRun(t, "catalog", "list")
	assert.Regexp(t, `headlamp\s+Beam Headlamp\s+39.99 stock=12`, out)
	assert.Regexp(t, `stove\s+Pocket Stove\s+44.99 \(sale\) stock=12`, out)
	assert.Contains(t, out, "2 of 2 product(s)")

	out = mustRun(t, "catalog", "list", "--limit", "1", "--offset", "1")
	assert.Contains(t, out, "1 of 2 product(s)")

	_, err := run(t, "catalog", "import", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
	_, err = run(t, "catalog", "import", writeCatalog(t), "--default-stock", "-1")
	assert.Error(t, err)
}

func TestSessionSweepCmd(t *testing.T) {
	setupHome(t)
	assert.Equal(t, "Removed 0 expired session(s), 0 active\n", mustRun(t, "session", "sweep"))

	mustRun(t, "agent", "create", "shop-bot")
	assert.Equal(t, "No active sessions for shop-bot\n", mustRun(t, "session", "list", "shop-bot"))
}

func TestOrderStatusCmd(t *testing.T) {
	home := setupHome(t)
	mustRun(t, "agent", "create", "shop-bot")
	mustRun(t, "catalog", "import", writeCatalog(t))

	db, err := store.Open(filepath.Join(home, "data", "mercora.db"), logging.New(nil, "silent"))
	require.NoError(t, err)
	placed, err := store.NewOrderStore(db).Place(context.Background(), domain.Order{
		AgentID:        "shop-bot",
		Lines:          []domain.OrderLine{{ProductID: "headlamp", Name: "Beam Headlamp", Quantity: 1, UnitPriceCents: 3999, LineTotalCents: 3999}},
		SubtotalCents:  3999,
		TotalCents:     3999,
		Currency:       "USD",
		ShippingMethod: "standard",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out := mustRun(t, "order", "status", placed.ID)
	assert.Contains(t, out, "Status:  pending")
	assert.Contains(t, out, "Total:   39.99 USD (1 line(s), standard shipping)")
	assert.Contains(t, out, "order placed")

	out = mustRun(t, "order", "status", placed.ID, "confirmed", "--note", "payment captured")
	assert.Contains(t, out, "Status:  confirmed")
	assert.Contains(t, out, "payment captured")

	_, err = run(t, "order", "status", placed.ID, "delivered")
	assert.Error(t, err)
	_, err = run(t, "order", "status", "ord_missing")
	assert.Error(t, err)
}

func TestStatusCmd(t *testing.T) {
	setupHome(t)

	out := mustRun(t, "status")
	assert.Contains(t, out, "Config:   not found (using defaults)")
	assert.Contains(t, out, "Gateway:  port=18790 bind=loopback base=/mcp tls=false")
	assert.Contains(t, out, "(not created yet)")

	mustRun(t, "agent", "create", "shop-bot")
	mustRun(t, "catalog", "import", writeCatalog(t))
	out = mustRun(t, "status")
	assert.Contains(t, out, "(1 agents, 2 products, 0 active sessions)")
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		name string
		gw   config.GatewayConfig
		want string
	}{
		{"loopback", config.GatewayConfig{Port: 18790, Bind: "loopback", BasePath: "/mcp"}, "ws://127.0.0.1:18790/mcp/events"},
		{"lan dials loopback", config.GatewayConfig{Port: 9000, Bind: "lan", BasePath: "/mcp/"}, "ws://127.0.0.1:9000/mcp/events"},
		{"custom host", config.GatewayConfig{Port: 9000, Bind: "custom", CustomBindHost: "10.0.0.5", BasePath: "/api"}, "ws://10.0.0.5:9000/api/events"},
		{"tls", config.GatewayConfig{Port: 443, Bind: "loopback", BasePath: "/mcp", TLS: config.GatewayTLS{Enabled: true}}, "wss://127.0.0.1:443/mcp/events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventsURL(tt.gw))
		})
	}
}

func TestFormatFrame(t *testing.T) {
	assert.Equal(t, `#3 order_placed     {"order_id":"ord_1"}`,
		formatFrame([]byte(`{"type":"event","event":"order_placed","seq":3,"payload":{ "order_id": "ord_1" }}`)))
	assert.Equal(t, "not json", formatFrame([]byte("not json")))
}

func TestEventsWatchRequiresKey(t *testing.T) {
	setupHome(t)
	t.Setenv("MERCORA_API_KEY", "")
	_, err := run(t, "events", "watch")
	assert.ErrorContains(t, err, "API key")
}
