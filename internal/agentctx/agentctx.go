// Package agentctx decodes the optional X-Agent-Context request header.
// Decoding never fails the request: anything unusable is logged and
// treated as if the header were absent.
package agentctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/logging"
)

// Header is the request header carrying the context.
const Header = "X-Agent-Context"

// DefaultMaxBytes bounds the raw header length.
const DefaultMaxBytes = 1024

var (
	errTooLarge = errors.New("header exceeds size limit")
	errAgentID  = errors.New("agentId must be a non-empty string")
)

// Context is a decoded header: the agent that claims to be calling and the
// user it is shopping for.
type Context struct {
	AgentID     string
	UserContext domain.UserContext
}

// Parser decodes context headers up to a size limit.
type Parser struct {
	maxBytes int
	log      *logging.Logger
}

// NewParser creates a parser. A non-positive maxBytes uses DefaultMaxBytes.
func NewParser(maxBytes int, log *logging.Logger) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Parser{maxBytes: maxBytes, log: log.Sub("agentctx")}
}

// FromRequest parses the request's context header.
func (p *Parser) FromRequest(r *http.Request) *Context {
	return p.Parse(r.Header.Get(Header))
}

// Parse returns the decoded context, or nil when raw is empty or unusable.
func (p *Parser) Parse(raw string) *Context {
	if raw == "" {
		return nil
	}
	c, err := Decode(raw, p.maxBytes)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			p.log.Warn().Int("bytes", len(raw)).Int("max", p.maxBytes).Msg("agent context too large, ignoring")
		} else {
			p.log.Debug().Err(err).Msg("invalid agent context, ignoring")
		}
		return nil
	}
	return c
}

// Decode parses and validates raw, reporting why it was rejected.
func Decode(raw string, maxBytes int) (c *Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("decoding agent context: %v", r)
		}
	}()

	if len(raw) > maxBytes {
		return nil, errTooLarge
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("parsing agent context: %w", err)
	}
	if obj == nil {
		return nil, errors.New("agent context must be a JSON object")
	}

	agentID, ok := obj["agentId"].(string)
	if !ok || agentID == "" {
		return nil, errAgentID
	}

	out := &Context{AgentID: agentID}
	if out.UserContext.UserID, err = optString(obj, "userId", "user_id"); err != nil {
		return nil, err
	}
	if out.UserContext.SessionContext, err = optString(obj, "session_context", "sessionContext"); err != nil {
		return nil, err
	}

	if rawPrefs, ok := first(obj, "userPreferences", "user_preferences"); ok && rawPrefs != nil {
		prefs, ok := rawPrefs.(map[string]any)
		if !ok {
			return nil, errors.New("userPreferences must be an object")
		}
		out.UserContext.Preferences, err = decodePreferences(prefs)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodePreferences(m map[string]any) (*domain.Preferences, error) {
	var p domain.Preferences

	if v, ok := m["budget"]; ok && v != nil {
		b, ok := v.(float64)
		if !ok || b < 0 {
			return nil, errors.New("budget must be a non-negative number")
		}
		p.Budget = &b
	}

	var err error
	if p.Brands, err = optStrings(m, "brands"); err != nil {
		return nil, err
	}
	if p.Activities, err = optStrings(m, "activities"); err != nil {
		return nil, err
	}
	if p.Location, err = optString(m, "location"); err != nil {
		return nil, err
	}
	if p.ExperienceLevel, err = optString(m, "experience_level", "experienceLevel"); err != nil {
		return nil, err
	}
	return &p, nil
}

// first returns the value of the first present key.
func first(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func optString(m map[string]any, keys ...string) (string, error) {
	v, ok := first(m, keys...)
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", keys[0])
	}
	return s, nil
}

func optStrings(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array", key)
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
