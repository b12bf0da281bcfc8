package store

import (
	"context"
	"fmt"
)

// Schema for the meal ledger and the read-only catalog tables it references.
// Foreign keys form a strict dependency chain: restaurant -> menu item ->
// meal unit -> redemption record. The partial unique index on one_time_code
// enforces code uniqueness among live pending records and is what turns a
// random collision into the broker's retry signal.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS restaurants (
	id          BIGSERIAL PRIMARY KEY,
	owner_id    BIGINT,
	name        TEXT NOT NULL,
	image_url   TEXT,
	city        TEXT,
	district    TEXT,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	restaurant_id BIGINT REFERENCES restaurants(id),
	full_name     TEXT NOT NULL,
	email         TEXT UNIQUE NOT NULL,
	phone         TEXT,
	role          TEXT NOT NULL CHECK (role IN ('Admin', 'Donor', 'Recipient', 'Staff', 'Restaurant')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS menu_items (
	id            BIGSERIAL PRIMARY KEY,
	restaurant_id BIGINT NOT NULL REFERENCES restaurants(id),
	name          TEXT NOT NULL,
	price         BIGINT NOT NULL,
	image_url     TEXT,
	is_available  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS meal_units (
	id            BIGSERIAL PRIMARY KEY,
	restaurant_id BIGINT NOT NULL REFERENCES restaurants(id),
	donor_id      BIGINT REFERENCES users(id),
	menu_item_id  BIGINT NOT NULL REFERENCES menu_items(id),
	quantity      INT NOT NULL DEFAULT 1,
	status        TEXT NOT NULL DEFAULT 'Active' CHECK (status IN ('Active', 'Used', 'Expired', 'Cancelled')),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_meal_units_active_pool
	ON meal_units (restaurant_id, menu_item_id, created_at)
	WHERE status = 'Active';

CREATE TABLE IF NOT EXISTS redemption_records (
	id            BIGSERIAL PRIMARY KEY,
	meal_unit_id  BIGINT NOT NULL REFERENCES meal_units(id),
	staff_id      BIGINT REFERENCES users(id),
	recipient_id  BIGINT REFERENCES users(id),
	action        TEXT NOT NULL CHECK (action IN ('Created', 'Used', 'Expired', 'Cancelled')),
	one_time_code TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	redeemed_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_redemption_records_pending_code
	ON redemption_records (one_time_code)
	WHERE action = 'Created' AND one_time_code IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_redemption_records_code
	ON redemption_records (one_time_code);

CREATE INDEX IF NOT EXISTS idx_redemption_records_recipient_used
	ON redemption_records (recipient_id, redeemed_at)
	WHERE action = 'Used';
`

// EnsureSchema applies the ledger DDL. All statements are idempotent, so this
// is safe to run on every service start.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}
