package db

// CustomerSchema is owned by the customer service.
const CustomerSchema = `
CREATE TABLE IF NOT EXISTS customers (
	id             SERIAL PRIMARY KEY,
	username       VARCHAR(64) NOT NULL UNIQUE,
	full_name      TEXT NOT NULL,
	email          TEXT NOT NULL UNIQUE,
	age            INTEGER,
	address        TEXT NOT NULL DEFAULT '',
	gender         TEXT NOT NULL DEFAULT '',
	marital_status TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	wallet_balance NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallet_operations (
	idempotency_key TEXT PRIMARY KEY,
	username        VARCHAR(64) NOT NULL,
	kind            TEXT NOT NULL,
	amount          NUMERIC(14,2) NOT NULL,
	balance_after   NUMERIC(14,2) NOT NULL,
	reversed        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InventorySchema is owned by the inventory service.
const InventorySchema = `
CREATE TABLE IF NOT EXISTS items (
	id          SERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL,
	price       NUMERIC(12,2) NOT NULL CHECK (price > 0),
	description TEXT NOT NULL DEFAULT '',
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_items_category_price ON items (category, price);

CREATE TABLE IF NOT EXISTS stock_operations (
	idempotency_key TEXT PRIMARY KEY,
	item_id         INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	stock_after     INTEGER NOT NULL,
	released        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// SalesSchema is owned by the sales service.
const SalesSchema = `
CREATE TABLE IF NOT EXISTS purchases (
	id              BIGSERIAL PRIMARY KEY,
	idempotency_key TEXT UNIQUE,
	customer_id     VARCHAR(64) NOT NULL,
	item_id         INTEGER NOT NULL,
	item_name       TEXT NOT NULL,
	quantity        INTEGER NOT NULL CHECK (quantity > 0),
	price_per_item  NUMERIC(12,2) NOT NULL,
	total_price     NUMERIC(14,2) NOT NULL,
	purchase_date   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (total_price = price_per_item * quantity)
);

CREATE INDEX IF NOT EXISTS idx_purchases_customer_date ON purchases (customer_id, purchase_date DESC);

CREATE TABLE IF NOT EXISTS purchase_attempts (
	idempotency_key TEXT PRIMARY KEY,
	customer_id     VARCHAR(64) NOT NULL,
	item_id         INTEGER NOT NULL,
	quantity        INTEGER NOT NULL,
	run             INTEGER NOT NULL DEFAULT 1,
	status          TEXT NOT NULL,
	amount          NUMERIC(14,2) NOT NULL DEFAULT 0,
	purchase        JSONB,
	error_code      TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_purchase_attempts_status ON purchase_attempts (status);
`
