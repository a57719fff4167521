package agentctx

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soyeahso/mercora/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Absent(t *testing.T) {
	p := NewParser(0, logging.New(nil, "silent"))
	assert.Nil(t, p.Parse(""))
	assert.Nil(t, p.FromRequest(httptest.NewRequest("GET", "/", nil)))
}

func TestParse_Full(t *testing.T) {
	p := NewParser(0, logging.New(nil, "silent"))
	raw := `{"agentId":"shopper-1","userId":"u-7","session_context":"gift for dad",
		"userPreferences":{"budget":150.5,"brands":["Summit"],"activities":["hiking","camping"],
		"location":"Denver","experience_level":"beginner"}}`

	c := p.Parse(raw)
	require.NotNil(t, c)
	assert.Equal(t, "shopper-1", c.AgentID)
	assert.Equal(t, "u-7", c.UserContext.UserID)
	assert.Equal(t, "gift for dad", c.UserContext.SessionContext)

	prefs := c.UserContext.Preferences
	require.NotNil(t, prefs)
	require.NotNil(t, prefs.Budget)
	assert.Equal(t, 150.5, *prefs.Budget)
	assert.Equal(t, []string{"Summit"}, prefs.Brands)
	assert.Equal(t, []string{"hiking", "camping"}, prefs.Activities)
	assert.Equal(t, "Denver", prefs.Location)
	assert.Equal(t, "beginner", prefs.ExperienceLevel)
}

func TestParse_FromRequest(t *testing.T) {
	p := NewParser(0, logging.New(nil, "silent"))
	r := httptest.NewRequest("POST", "/mcp/tools/search", nil)
	r.Header.Set(Header, `{"agentId":"shopper-1"}`)

	c := p.FromRequest(r)
	require.NotNil(t, c)
	assert.Equal(t, "shopper-1", c.AgentID)
	assert.True(t, c.UserContext.IsZero())
}

func TestParse_RejectsWithoutFailing(t *testing.T) {
	p := NewParser(0, logging.New(nil, "silent"))

	cases := map[string]string{
		"not json":              `{agentId:`,
		"array":                 `["agentId"]`,
		"null":                  `null`,
		"string":                `"shopper-1"`,
		"missing agentId":       `{"userId":"u"}`,
		"empty agentId":         `{"agentId":""}`,
		"numeric agentId":       `{"agentId":42}`,
		"userId not string":     `{"agentId":"a","userId":7}`,
		"prefs not object":      `{"agentId":"a","userPreferences":"cheap"}`,
		"negative budget":       `{"agentId":"a","userPreferences":{"budget":-1}}`,
		"budget string":         `{"agentId":"a","userPreferences":{"budget":"100"}}`,
		"brands not array":      `{"agentId":"a","userPreferences":{"brands":"Summit"}}`,
		"activities mixed":      `{"agentId":"a","userPreferences":{"activities":["hiking",3]}}`,
		"location not string":   `{"agentId":"a","userPreferences":{"location":{"city":"x"}}}`,
		"experience not string": `{"agentId":"a","userPreferences":{"experience_level":3}}`,
		"trailing garbage":      `{"agentId":"a"} extra`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Nil(t, p.Parse(raw))
			})
		})
	}
}

func TestParse_SizeLimit(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "warn")
	p := NewParser(DefaultMaxBytes, log)

	base := `{"agentId":"shopper-1","session_context":"`
	pad := DefaultMaxBytes - len(base) - len(`"}`)
	exact := base + strings.Repeat("x", pad) + `"}`
	require.Len(t, exact, DefaultMaxBytes)
	assert.NotNil(t, p.Parse(exact), "exactly at the limit is accepted")

	over := base + strings.Repeat("x", pad+1) + `"}`
	assert.Nil(t, p.Parse(over))
	assert.Contains(t, buf.String(), "too large")
}

func TestParse_NullFieldsIgnored(t *testing.T) {
	p := NewParser(0, logging.New(nil, "silent"))
	c := p.Parse(`{"agentId":"a","userId":null,"userPreferences":{"budget":null,"brands":null}}`)
	require.NotNil(t, c)
	assert.Empty(t, c.UserContext.UserID)
	require.NotNil(t, c.UserContext.Preferences)
	assert.Nil(t, c.UserContext.Preferences.Budget)
}

func TestDecode_ReportsReason(t *testing.T) {
	_, err := Decode(`{"agentId":""}`, DefaultMaxBytes)
	assert.ErrorIs(t, err, errAgentID)

	_, err = Decode(strings.Repeat(" ", 20), 10)
	assert.ErrorIs(t, err, errTooLarge)
}
