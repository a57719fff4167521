package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create agents",
		SQL: `
			CREATE TABLE agents (
				id                   TEXT PRIMARY KEY,
				name                 TEXT NOT NULL,
				description          TEXT NOT NULL DEFAULT '',
				api_key_hash         TEXT NOT NULL,
				api_key_prefix       TEXT NOT NULL,
				permissions          TEXT NOT NULL DEFAULT '[]',
				requests_per_minute  INTEGER NOT NULL,
				operations_per_hour  INTEGER NOT NULL,
				is_active            INTEGER NOT NULL DEFAULT 1,
				created_at           TEXT NOT NULL,
				last_used_at         TEXT
			);

			CREATE UNIQUE INDEX idx_agents_api_key ON agents (api_key_hash);
		`,
	},
	{
		Version: 2,
		Name:    "create rate limit counters",
		SQL: `
			CREATE TABLE rate_limits (
				agent_id      TEXT NOT NULL REFERENCES agents(id),
				granularity   TEXT NOT NULL,
				window_start  TEXT NOT NULL,
				count         INTEGER NOT NULL,
				PRIMARY KEY (agent_id, granularity, window_start)
			);
		`,
	},
	{
		Version: 3,
		Name:    "create agent sessions",
		SQL: `
			CREATE TABLE agent_sessions (
				id             TEXT PRIMARY KEY,
				agent_id       TEXT NOT NULL REFERENCES agents(id),
				user_context   TEXT NOT NULL DEFAULT '{}',
				cart           TEXT NOT NULL DEFAULT '[]',
				created_at     TEXT NOT NULL,
				expires_at     TEXT NOT NULL,
				last_activity  TEXT NOT NULL
			);

			CREATE INDEX idx_agent_sessions_agent ON agent_sessions (agent_id, expires_at);
			CREATE INDEX idx_agent_sessions_expiry ON agent_sessions (expires_at);
		`,
	},
	{
		Version: 4,
		Name:    "create products with FTS5",
		SQL: `
			CREATE TABLE products (
				id                 TEXT PRIMARY KEY,
				name               TEXT NOT NULL,
				slug               TEXT NOT NULL,
				brand              TEXT NOT NULL DEFAULT '',
				categories         TEXT NOT NULL DEFAULT '[]',
				price_cents        INTEGER NOT NULL,
				sale_price_cents   INTEGER NOT NULL DEFAULT 0,
				on_sale            INTEGER NOT NULL DEFAULT 0,
				short_description  TEXT NOT NULL DEFAULT '',
				long_description   TEXT NOT NULL DEFAULT '',
				tags               TEXT NOT NULL DEFAULT '[]',
				use_cases          TEXT NOT NULL DEFAULT '[]',
				attributes         TEXT NOT NULL DEFAULT '{}',
				ai_notes           TEXT NOT NULL DEFAULT '',
				stock              INTEGER NOT NULL DEFAULT 0,
				weight_grams       INTEGER NOT NULL DEFAULT 0,
				created_at         TEXT NOT NULL
			);

			CREATE UNIQUE INDEX idx_products_slug ON products (slug);

			CREATE VIRTUAL TABLE products_fts USING fts5(
				name,
				brand,
				description,
				tags,
				content='',
				tokenize='porter unicode61'
			);

			CREATE TRIGGER products_ai AFTER INSERT ON products BEGIN
				INSERT INTO products_fts(rowid, name, brand, description, tags)
				VALUES (new.rowid, new.name, new.brand,
				        new.short_description || ' ' || new.long_description,
				        new.tags || ' ' || new.use_cases || ' ' || new.categories);
			END;

			CREATE TRIGGER products_ad AFTER DELETE ON products BEGIN
				INSERT INTO products_fts(products_fts, rowid, name, brand, description, tags)
				VALUES ('delete', old.rowid, old.name, old.brand,
				        old.short_description || ' ' || old.long_description,
				        old.tags || ' ' || old.use_cases || ' ' || old.categories);
			END;

			CREATE TRIGGER products_au AFTER UPDATE ON products BEGIN
				INSERT INTO products_fts(products_fts, rowid, name, brand, description, tags)
				VALUES ('delete', old.rowid, old.name, old.brand,
				        old.short_description || ' ' || old.long_description,
				        old.tags || ' ' || old.use_cases || ' ' || old.categories);
				INSERT INTO products_fts(rowid, name, brand, description, tags)
				VALUES (new.rowid, new.name, new.brand,
				        new.short_description || ' ' || new.long_description,
				        new.tags || ' ' || new.use_cases || ' ' || new.categories);
			END;
		`,
	},
	{
		Version: 5,
		Name:    "create orders",
		SQL: `
			CREATE TABLE orders (
				id                TEXT PRIMARY KEY,
				agent_id          TEXT NOT NULL REFERENCES agents(id),
				session_id        TEXT NOT NULL DEFAULT '',
				lines             TEXT NOT NULL,
				subtotal_cents    INTEGER NOT NULL,
				shipping_cents    INTEGER NOT NULL,
				tax_cents         INTEGER NOT NULL,
				total_cents       INTEGER NOT NULL,
				currency          TEXT NOT NULL,
				shipping_method   TEXT NOT NULL,
				shipping_address  TEXT NOT NULL,
				status            TEXT NOT NULL,
				created_at        TEXT NOT NULL,
				updated_at        TEXT NOT NULL
			);

			CREATE INDEX idx_orders_agent ON orders (agent_id, created_at);

			CREATE TABLE order_history (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				order_id  TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				status    TEXT NOT NULL,
				at        TEXT NOT NULL,
				note      TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_order_history_order ON order_history (order_id, id);
		`,
	},
}
