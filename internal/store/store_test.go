package store

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testDB(t *testing.T) (*DB, *testClock) {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &testClock{t: time.Date(2026, 3, 14, 9, 26, 10, 0, time.UTC)}
	db.SetClock(clock.Now)
	return db, clock
}

func createAgent(t *testing.T, db *DB, id string, rpm int) string {
	t.Helper()
	key, err := NewAgentStore(db, DefaultAgentLimits).Create(context.Background(), NewAgent{
		ID: id, Name: "Agent " + id, RequestsPerMinute: rpm,
	})
	require.NoError(t, err)
	return key
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db, _ := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestMigrations_Applied(t *testing.T) {
	db, _ := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db, _ := testDB(t)

	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db, _ := testDB(t)

	tables := []string{"agents", "rate_limits", "agent_sessions", "products", "products_fts", "orders", "order_history"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/mercora.db"
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.sql.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestTimeFormat_SortsLexically(t *testing.T) {
	a := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC))
	b := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 60_000_000, time.UTC))
	assert.Less(t, a, b)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC), parseTime(a))
	assert.True(t, parseTime("garbage").IsZero())
}

// --- Agent registry ---

func TestAgentStore_CreateAndResolve(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	ctx := context.Background()

	key, err := agents.Create(ctx, NewAgent{ID: "shopper-1", Name: "Shopper Bot", Description: "test"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "mcp_"))
	assert.Len(t, key, len("mcp_")+48)

	a, err := agents.GetByAPIKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "shopper-1", a.ID)
	assert.Equal(t, "Shopper Bot", a.Name)
	assert.Equal(t, 100, a.RequestsPerMinute)
	assert.Equal(t, 10, a.OperationsPerHour)
	assert.Equal(t, domain.DefaultPermissions, a.Permissions)
	assert.True(t, a.Active)
	assert.Nil(t, a.LastUsedAt)
}

func TestAgentStore_KeysAreUnique(t *testing.T) {
	db, _ := testDB(t)
	k1 := createAgent(t, db, "agent-a", 0)
	k2 := createAgent(t, db, "agent-b", 0)
	assert.NotEqual(t, k1, k2)
}

func TestAgentStore_KeyNotStoredInPlaintext(t *testing.T) {
	db, _ := testDB(t)
	key := createAgent(t, db, "agent-a", 0)

	var n int
	require.NoError(t, db.sql.QueryRow(
		"SELECT COUNT(*) FROM agents WHERE api_key_hash = ? OR api_key_prefix = ?", key, key,
	).Scan(&n))
	assert.Zero(t, n)
}

func TestAgentStore_CreateValidation(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    NewAgent
		field string
	}{
		{"short id", NewAgent{ID: "ab", Name: "Valid Name"}, "agent_id"},
		{"short name", NewAgent{ID: "valid-id", Name: "ab"}, "name"},
		{"blank name", NewAgent{ID: "valid-id", Name: "    "}, "name"},
		{"bad id chars", NewAgent{ID: "has space", Name: "Valid Name"}, "agent_id"},
		{"negative rpm", NewAgent{ID: "valid-id", Name: "Valid Name", RequestsPerMinute: -1}, "requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agents.Create(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, mcp.IsCode(err, mcp.CodeValidation))
			assert.Equal(t, tt.field, mcp.AsError(err).Field)
		})
	}
}

func TestAgentStore_DuplicateID(t *testing.T) {
	db, _ := testDB(t)
	createAgent(t, db, "shopper-1", 0)

	_, err := NewAgentStore(db, DefaultAgentLimits).Create(context.Background(),
		NewAgent{ID: "shopper-1", Name: "Another"})
	require.Error(t, err)
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation))
	assert.Equal(t, "agent_id", mcp.AsError(err).Field)
}

func TestAgentStore_ConfiguredDefaults(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, AgentLimits{RequestsPerMinute: 7, OperationsPerHour: 3})
	_, err := agents.Create(context.Background(), NewAgent{ID: "agent-x", Name: "Agent X"})
	require.NoError(t, err)

	a, err := agents.Get(context.Background(), "agent-x")
	require.NoError(t, err)
	assert.Equal(t, 7, a.RequestsPerMinute)
	assert.Equal(t, 3, a.OperationsPerHour)
}

func TestAgentStore_UnknownKey(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)

	a, err := agents.GetByAPIKey(context.Background(), "mcp_nope")
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = agents.GetByAPIKey(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestAgentStore_SetActive(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	ctx := context.Background()
	key := createAgent(t, db, "shopper-1", 0)

	prev, err := agents.SetActive(ctx, "shopper-1", false)
	require.NoError(t, err)
	assert.True(t, prev)

	a, err := agents.GetByAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, a, "inactive agents do not resolve")

	a, err = agents.Get(ctx, "shopper-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.False(t, a.Active)

	prev, err = agents.SetActive(ctx, "shopper-1", true)
	require.NoError(t, err)
	assert.False(t, prev)

	a, err = agents.GetByAPIKey(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestAgentStore_SetActiveMissing(t *testing.T) {
	db, _ := testDB(t)
	_, err := NewAgentStore(db, DefaultAgentLimits).SetActive(context.Background(), "ghost", false)
	assert.True(t, mcp.IsCode(err, mcp.CodeResourceNotFound))
}

func TestAgentStore_TouchLastUsed(t *testing.T) {
	db, clock := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	clock.Advance(5 * time.Second)
	require.NoError(t, agents.TouchLastUsed(ctx, "shopper-1"))

	a, err := agents.Get(ctx, "shopper-1")
	require.NoError(t, err)
	require.NotNil(t, a.LastUsedAt)
	assert.Equal(t, clock.Now(), *a.LastUsedAt)
}

func TestAgentStore_ListWithUsage(t *testing.T) {
	db, clock := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	limits := NewRateLimitStore(db)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()

	createAgent(t, db, "agent-a", 0)
	clock.Advance(time.Second)
	createAgent(t, db, "agent-b", 0)
	clock.Advance(time.Second)
	createAgent(t, db, "agent-c", 0)

	for range 3 {
		_, err := limits.Increment(ctx, "agent-b", domain.WindowMinute, 100)
		require.NoError(t, err)
	}
	_, err := limits.Increment(ctx, "agent-b", domain.WindowHour, 10)
	require.NoError(t, err)
	_, err = sessions.CreateSession(ctx, "agent-b", domain.UserContext{})
	require.NoError(t, err)

	page, total, err := agents.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "agent-c", page[0].ID, "newest first")
	assert.Equal(t, "agent-b", page[1].ID)
	assert.Equal(t, domain.AgentUsage{RequestsThisMinute: 3, OperationsThisHour: 1, ActiveSessions: 1}, page[1].Usage)

	page, _, err = agents.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "agent-a", page[0].ID)
	assert.Zero(t, page[0].Usage.RequestsThisMinute)
}

func TestAgentStore_ListPastLastPage(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	createAgent(t, db, "agent-a", 0)

	page, total, err := agents.List(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestAgentStore_CorruptPermissions(t *testing.T) {
	db, _ := testDB(t)
	agents := NewAgentStore(db, DefaultAgentLimits)
	ctx := context.Background()
	key := createAgent(t, db, "agent-a", 0)

	_, err := db.sql.Exec(`UPDATE agents SET permissions = 'not json' WHERE id = ?`, "agent-a")
	require.NoError(t, err)

	_, err = agents.Get(ctx, "agent-a")
	assert.True(t, mcp.IsCode(err, mcp.CodeDatabase), "%v", err)
	_, err = agents.GetByAPIKey(ctx, key)
	assert.True(t, mcp.IsCode(err, mcp.CodeDatabase), "%v", err)
	_, _, err = agents.List(ctx, 1, 10)
	assert.True(t, mcp.IsCode(err, mcp.CodeDatabase), "%v", err)
}

// --- Rate limit counters ---

func TestRateLimit_NthAllowedNPlusOneRejected(t *testing.T) {
	db, _ := testDB(t)
	limits := NewRateLimitStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	for i := 1; i <= 5; i++ {
		w, err := limits.Increment(ctx, "shopper-1", domain.WindowMinute, 5)
		require.NoError(t, err)
		assert.True(t, w.Allowed, "request %d", i)
		assert.Equal(t, i, w.Count)
	}

	w, err := limits.Increment(ctx, "shopper-1", domain.WindowMinute, 5)
	require.NoError(t, err)
	assert.False(t, w.Allowed)
	assert.Equal(t, 5, w.Count)

	n, err := limits.Current(ctx, "shopper-1", domain.WindowMinute)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "rejected requests are not counted")
}

func TestRateLimit_WindowRollover(t *testing.T) {
	db, clock := testDB(t)
	limits := NewRateLimitStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	for range 2 {
		w, err := limits.Increment(ctx, "shopper-1", domain.WindowMinute, 2)
		require.NoError(t, err)
		assert.True(t, w.Allowed)
	}
	w, err := limits.Increment(ctx, "shopper-1", domain.WindowMinute, 2)
	require.NoError(t, err)
	require.False(t, w.Allowed)
	assert.Equal(t, 50*time.Second, w.RetryAfter)
	assert.Equal(t, 50*time.Second, w.ResetsIn(clock.Now()))

	clock.Advance(50 * time.Second)
	w, err = limits.Increment(ctx, "shopper-1", domain.WindowMinute, 2)
	require.NoError(t, err)
	assert.True(t, w.Allowed)
	assert.Equal(t, 1, w.Count)

	var rows int
	require.NoError(t, db.sql.QueryRow(
		"SELECT COUNT(*) FROM rate_limits WHERE agent_id = 'shopper-1' AND granularity = 'minute'",
	).Scan(&rows))
	assert.Equal(t, 2, rows, "past windows are retained")
}

func TestRateLimit_GranularitiesAreIndependent(t *testing.T) {
	db, _ := testDB(t)
	limits := NewRateLimitStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	w, err := limits.Increment(ctx, "shopper-1", domain.WindowHour, 1)
	require.NoError(t, err)
	assert.True(t, w.Allowed)

	w, err = limits.Increment(ctx, "shopper-1", domain.WindowMinute, 1)
	require.NoError(t, err)
	assert.True(t, w.Allowed)

	w, err = limits.Increment(ctx, "shopper-1", domain.WindowHour, 1)
	require.NoError(t, err)
	assert.False(t, w.Allowed)
}

func TestRateLimit_ReleaseGivesBackOne(t *testing.T) {
	db, clock := testDB(t)
	limits := NewRateLimitStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	w, err := limits.Increment(ctx, "shopper-1", domain.WindowHour, 1)
	require.NoError(t, err)
	require.True(t, w.Allowed)

	require.NoError(t, limits.Release(ctx, "shopper-1", domain.WindowHour, w.Start))
	n, err := limits.Current(ctx, "shopper-1", domain.WindowHour)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, limits.Release(ctx, "shopper-1", domain.WindowHour, w.Start))
	n, err = limits.Current(ctx, "shopper-1", domain.WindowHour)
	require.NoError(t, err)
	assert.Zero(t, n, "never below zero")

	w, err = limits.Increment(ctx, "shopper-1", domain.WindowHour, 1)
	require.NoError(t, err)
	assert.True(t, w.Allowed, "released slot is usable again")

	// A release for a past window leaves the current one alone.
	clock.Advance(time.Hour)
	_, err = limits.Increment(ctx, "shopper-1", domain.WindowHour, 1)
	require.NoError(t, err)
	require.NoError(t, limits.Release(ctx, "shopper-1", domain.WindowHour, w.Start))
	n, err = limits.Current(ctx, "shopper-1", domain.WindowHour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateLimit_ZeroLimitRejectsWithoutWriting(t *testing.T) {
	db, _ := testDB(t)
	limits := NewRateLimitStore(db)
	createAgent(t, db, "shopper-1", 0)

	w, err := limits.Increment(context.Background(), "shopper-1", domain.WindowMinute, 0)
	require.NoError(t, err)
	assert.False(t, w.Allowed)

	var rows int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM rate_limits").Scan(&rows))
	assert.Zero(t, rows)
}

func TestRateLimit_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	db, _ := testDB(t)
	limits := NewRateLimitStore(db)
	createAgent(t, db, "shopper-1", 0)

	const limit, callers = 10, 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := limits.Increment(context.Background(), "shopper-1", domain.WindowMinute, limit)
			if assert.NoError(t, err) && w.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, limit, allowed)
}

// --- Sessions ---

func TestSession_CreateGetRoundTrip(t *testing.T) {
	db, clock := testDB(t)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	budget := 250.0
	uc := domain.UserContext{
		UserID: "user-9",
		Preferences: &domain.Preferences{
			Budget: &budget, Brands: []string{"Patagonia"}, Activities: []string{"hiking"},
			Location: "Denver", ExperienceLevel: "beginner",
		},
		SessionContext: "weekend trip",
	}

	created, err := sessions.CreateSession(ctx, "shopper-1", uc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.ID, "shopper-1_"))
	assert.Equal(t, clock.Now().Add(24*time.Hour), created.ExpiresAt)

	got, err := sessions.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "shopper-1", got.AgentID)
	assert.Equal(t, uc, got.UserContext)
	assert.Empty(t, got.Cart)
	assert.NotNil(t, got.Cart)
	assert.Equal(t, created.ExpiresAt, got.ExpiresAt)
}

func TestSession_SubMillisecondClockRoundTrips(t *testing.T) {
	db, clock := testDB(t)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)
	clock.Advance(123456789 * time.Nanosecond)

	created, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{})
	require.NoError(t, err)
	assert.Zero(t, created.ExpiresAt.Nanosecond()%int(time.Millisecond))

	got, err := sessions.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, created.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, created.LastActivity.Equal(got.LastActivity))
}

func TestSession_IDsAreUnique(t *testing.T) {
	db, _ := testDB(t)
	sessions := NewSessionStore(db, 0)
	createAgent(t, db, "shopper-1", 0)

	seen := map[string]bool{}
	for range 20 {
		s, err := sessions.CreateSession(context.Background(), "shopper-1", domain.UserContext{})
		require.NoError(t, err)
		assert.False(t, seen[s.ID])
		seen[s.ID] = true
	}
}

func TestSession_LazyExpiryIsIdempotent(t *testing.T) {
	db, clock := testDB(t)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	s, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{})
	require.NoError(t, err)

	clock.Advance(24*time.Hour - time.Millisecond)
	got, err := sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "still live just before expiry")

	clock.Advance(time.Millisecond)
	got, err = sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "absent at expiry")

	got, err = sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var rows int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM agent_sessions").Scan(&rows))
	assert.Zero(t, rows, "expired row purged on read")
}

func TestSession_UpdateCartKeepsExpiry(t *testing.T) {
	db, clock := testDB(t)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	s, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	cart := []domain.CartItem{{ProductID: "p1", Quantity: 2}}
	ok, err := sessions.UpdateSession(ctx, s.ID, domain.SessionUpdate{Cart: &cart})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Cart, 1)
	assert.Equal(t, 2, got.Cart[0].Quantity)
	assert.Equal(t, s.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, clock.Now(), got.LastActivity)
}

func TestSession_UpdateMergesUserContext(t *testing.T) {
	db, _ := testDB(t)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	s, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{
		UserID:      "user-1",
		Preferences: &domain.Preferences{Brands: []string{"Arc'teryx"}},
	})
	require.NoError(t, err)

	ok, err := sessions.UpdateSession(ctx, s.ID, domain.SessionUpdate{
		UserContext: &domain.UserContext{Preferences: &domain.Preferences{Location: "Boulder"}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserContext.UserID)
	assert.Equal(t, []string{"Arc'teryx"}, got.UserContext.Preferences.Brands)
	assert.Equal(t, "Boulder", got.UserContext.Preferences.Location)
}

func TestSession_UpdateMissingOrExpired(t *testing.T) {
	db, clock := testDB(t)
	sessions := NewSessionStore(db, time.Hour)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	ok, err := sessions.UpdateSession(ctx, "nope", domain.SessionUpdate{})
	require.NoError(t, err)
	assert.False(t, ok)

	s, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	ok, err = sessions.UpdateSession(ctx, s.ID, domain.SessionUpdate{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_Delete(t *testing.T) {
	db, _ := testDB(t)
	sessions := NewSessionStore(db, 0)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	s, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{})
	require.NoError(t, err)

	ok, err := sessions.DeleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sessions.DeleteSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_CleanupAndActiveList(t *testing.T) {
	db, clock := testDB(t)
	sessions := NewSessionStore(db, time.Hour)
	ctx := context.Background()
	createAgent(t, db, "agent-a", 0)
	createAgent(t, db, "agent-b", 0)

	old, err := sessions.CreateSession(ctx, "agent-a", domain.UserContext{})
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	fresh, err := sessions.CreateSession(ctx, "agent-a", domain.UserContext{})
	require.NoError(t, err)
	_, err = sessions.CreateSession(ctx, "agent-b", domain.UserContext{})
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)

	active, err := sessions.GetActiveSessionsForAgent(ctx, "agent-a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)

	n, err := sessions.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := sessions.GetSession(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Catalog ---

func seedProducts(t *testing.T, db *DB) *ProductStore {
	t.Helper()
	products := NewProductStore(db)
	for _, p := range []domain.Product{
		{
			ID: "tent-2p", Name: "Trailhead 2P Tent", Brand: "Summit", Categories: []string{"Tents"},
			PriceCents: 24999, Tags: []string{"camping", "backpacking"}, UseCases: []string{"hiking"},
			ShortDescription: "Lightweight two person tent", Stock: 5,
		},
		{
			ID: "stove", Name: "Pocket Stove", Brand: "Ember", Categories: []string{"Cooking"},
			PriceCents: 5999, SalePriceCents: 4499, OnSale: true, Tags: []string{"camping"},
			ShortDescription: "Compact canister stove", Stock: 0,
		},
		{
			ID: "jacket", Name: "Ridge Rain Jacket", Brand: "Summit", Categories: []string{"Apparel"},
			PriceCents: 18900, Tags: []string{"shell"}, UseCases: []string{"hiking"},
			LongDescription: "Waterproof shell for alpine weather", Stock: 12,
			Attributes: map[string]string{"color": "blue"},
		},
	} {
		require.NoError(t, products.Upsert(context.Background(), p))
	}
	return products
}

func TestProducts_UpsertAndGet(t *testing.T) {
	db, _ := testDB(t)
	products := seedProducts(t, db)
	ctx := context.Background()

	p, err := products.Get(ctx, "jacket")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ridge-rain-jacket", p.Slug)
	assert.Equal(t, map[string]string{"color": "blue"}, p.Attributes)

	p.Stock = 3
	p.Name = "Ridge Storm Jacket"
	require.NoError(t, products.Upsert(ctx, *p))

	p, err = products.Get(ctx, "jacket")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	found, err := products.Search(ctx, domain.ProductQuery{Text: "storm"})
	require.NoError(t, err)
	require.Len(t, found, 1, "index follows updates")

	found, err = products.Search(ctx, domain.ProductQuery{Text: "rain"})
	require.NoError(t, err)
	assert.Empty(t, found, "old name no longer indexed")

	missing, err := products.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProducts_UpsertValidation(t *testing.T) {
	db, _ := testDB(t)
	products := NewProductStore(db)
	err := products.Upsert(context.Background(), domain.Product{Name: "No ID"})
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation))
	err = products.Upsert(context.Background(), domain.Product{ID: "x", Name: "Neg", Stock: -1})
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation))
}

func TestProducts_Search(t *testing.T) {
	db, _ := testDB(t)
	products := seedProducts(t, db)
	ctx := context.Background()

	ids := func(ps []domain.Product) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	tests := []struct {
		name string
		q    domain.ProductQuery
		want []string
	}{
		{"prefix text", domain.ProductQuery{Text: "tent"}, []string{"tent-2p"}},
		{"description text", domain.ProductQuery{Text: "waterproof"}, []string{"jacket"}},
		{"category", domain.ProductQuery{Category: "cooking"}, []string{"stove"}},
		{"brand", domain.ProductQuery{Brand: "summit"}, []string{"jacket", "tent-2p"}},
		{"tag or use case", domain.ProductQuery{Tags: []string{"hiking"}}, []string{"jacket", "tent-2p"}},
		{"sale price counts", domain.ProductQuery{MaxPriceCents: 5000}, []string{"stove"}},
		{"in stock", domain.ProductQuery{Tags: []string{"camping"}, InStockOnly: true}, []string{"tent-2p"}},
		{"limit", domain.ProductQuery{Limit: 1}, []string{"stove"}},
		{"fts syntax is inert", domain.ProductQuery{Text: `"tent*):`}, []string{"tent-2p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := products.Search(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestProducts_GetManyListCount(t *testing.T) {
	db, _ := testDB(t)
	products := seedProducts(t, db)
	ctx := context.Background()

	m, err := products.GetMany(ctx, []string{"stove", "jacket", "ghost"})
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Contains(t, m, "stove")

	list, err := products.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "jacket", list[0].ID)

	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "trail-runner-2-0", Slugify("Trail Runner 2.0"))
	assert.Equal(t, "", Slugify("  --  "))
}

// --- Orders ---

func newTestOrder(agentID, sessionID string, lines ...domain.OrderLine) domain.Order {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotalCents
	}
	return domain.Order{
		AgentID: agentID, SessionID: sessionID, Lines: lines,
		SubtotalCents: subtotal, TotalCents: subtotal, Currency: "USD", ShippingMethod: "standard",
		ShippingAddress: domain.Address{Line1: "1 Main St", City: "Denver", PostalCode: "80202", Country: "US"},
	}
}

func TestOrders_PlaceDecrementsStockAndClearsCart(t *testing.T) {
	db, _ := testDB(t)
	products := seedProducts(t, db)
	sessions := NewSessionStore(db, 0)
	orders := NewOrderStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	s, err := sessions.CreateSession(ctx, "shopper-1", domain.UserContext{})
	require.NoError(t, err)
	cart := []domain.CartItem{{ProductID: "tent-2p", Quantity: 2}}
	_, err = sessions.UpdateSession(ctx, s.ID, domain.SessionUpdate{Cart: &cart})
	require.NoError(t, err)

	o, err := orders.Place(ctx, newTestOrder("shopper-1", s.ID,
		domain.OrderLine{ProductID: "tent-2p", Quantity: 2, UnitPriceCents: 24999, LineTotalCents: 49998}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(o.ID, "ord_"))
	assert.Equal(t, domain.OrderPending, o.Status)

	p, err := products.Get(ctx, "tent-2p")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	got, err := sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Cart)

	loaded, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(49998), loaded.TotalCents)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, domain.OrderPending, loaded.History[0].Status)
}

func TestOrders_InsufficientStockWritesNothing(t *testing.T) {
	db, _ := testDB(t)
	products := seedProducts(t, db)
	orders := NewOrderStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	_, err := orders.Place(ctx, newTestOrder("shopper-1", "",
		domain.OrderLine{ProductID: "jacket", Quantity: 1, UnitPriceCents: 18900, LineTotalCents: 18900},
		domain.OrderLine{ProductID: "tent-2p", Quantity: 6, UnitPriceCents: 24999, LineTotalCents: 149994}))
	require.Error(t, err)
	assert.True(t, mcp.IsCode(err, mcp.CodeInsufficientStock))

	p, err := products.Get(ctx, "jacket")
	require.NoError(t, err)
	assert.Equal(t, 12, p.Stock, "earlier lines rolled back")

	list, err := orders.ListByAgent(ctx, "shopper-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrders_StatusLifecycle(t *testing.T) {
	db, clock := testDB(t)
	products := seedProducts(t, db)
	orders := NewOrderStore(db)
	ctx := context.Background()
	createAgent(t, db, "shopper-1", 0)

	o, err := orders.Place(ctx, newTestOrder("shopper-1", "",
		domain.OrderLine{ProductID: "jacket", Quantity: 2, UnitPriceCents: 18900, LineTotalCents: 37800}))
	require.NoError(t, err)

	_, err = orders.UpdateStatus(ctx, o.ID, domain.OrderShipped, "")
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation), "cannot skip states")

	clock.Advance(time.Minute)
	updated, err := orders.UpdateStatus(ctx, o.ID, domain.OrderConfirmed, "payment captured")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, updated.Status)
	require.Len(t, updated.History, 2)
	assert.Equal(t, "payment captured", updated.History[1].Note)
	assert.Equal(t, clock.Now(), updated.UpdatedAt)

	updated, err = orders.UpdateStatus(ctx, o.ID, domain.OrderCancelled, "customer request")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, updated.Status)

	p, err := products.Get(ctx, "jacket")
	require.NoError(t, err)
	assert.Equal(t, 12, p.Stock, "cancellation restocks")

	_, err = orders.UpdateStatus(ctx, o.ID, domain.OrderConfirmed, "")
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation))

	_, err = orders.UpdateStatus(ctx, "ord_missing", domain.OrderConfirmed, "")
	assert.True(t, mcp.IsCode(err, mcp.CodeResourceNotFound))

	_, err = orders.UpdateStatus(ctx, o.ID, domain.OrderStatus("lost"), "")
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation))
}

func TestOrders_ListByAgent(t *testing.T) {
	db, clock := testDB(t)
	seedProducts(t, db)
	orders := NewOrderStore(db)
	ctx := context.Background()
	createAgent(t, db, "agent-a", 0)
	createAgent(t, db, "agent-b", 0)

	line := domain.OrderLine{ProductID: "jacket", Quantity: 1, UnitPriceCents: 18900, LineTotalCents: 18900}
	first, err := orders.Place(ctx, newTestOrder("agent-a", "", line))
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := orders.Place(ctx, newTestOrder("agent-a", "", line))
	require.NoError(t, err)
	_, err = orders.Place(ctx, newTestOrder("agent-b", "", line))
	require.NoError(t, err)

	list, err := orders.ListByAgent(ctx, "agent-a", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestOrders_PlaceRequiresLines(t *testing.T) {
	db, _ := testDB(t)
	_, err := NewOrderStore(db).Place(context.Background(), domain.Order{AgentID: "a"})
	assert.True(t, mcp.IsCode(err, mcp.CodeValidation))
}
