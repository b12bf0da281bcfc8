/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL for the suspended-meal ledger: batch donation inserts,
 * FIFO unit selection with row locking, pending code bookkeeping, and the
 * two-table redemption settlement.
 *
 * Every multi-row mutation runs inside a single transaction with
 * commit-or-rollback semantics; a partial batch is never visible.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askida/meal-service/internal/domain"
)

var (
	ErrNoMealAvailable = errors.New("no active suspended meal for this menu item")
	ErrCodeNotFound    = errors.New("redemption code not found")
	ErrCodeCollision   = errors.New("one-time code collides with a live pending code")
	ErrAlreadyRedeemed = errors.New("meal unit already redeemed")
	ErrUnitNotFound    = errors.New("meal unit not found")
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-index violation,
// the broker's signal to mint a fresh code and retry.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateUnits inserts `count` Active meal units and one Created ledger record
// per unit. The whole batch commits or none of it does: a mid-batch failure
// rolls everything back so a donation is never partially recorded.
func (r *PostgresRepository) CreateUnits(ctx context.Context, restaurantID int64, donorID *int64, menuItemID int64, count int) ([]int64, error) {
	if count < 1 {
		return nil, fmt.Errorf("unit count must be positive, got %d", count)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	unitIDs := make([]int64, 0, count)
	insertUnit := `
		INSERT INTO meal_units (restaurant_id, donor_id, menu_item_id, quantity, status)
		VALUES ($1, $2, $3, 1, 'Active')
		RETURNING id
	`
	insertRecord := `
		INSERT INTO redemption_records (meal_unit_id, action)
		VALUES ($1, 'Created')
	`
	for i := 0; i < count; i++ {
		var unitID int64
		if err := tx.QueryRow(ctx, insertUnit, restaurantID, donorID, menuItemID).Scan(&unitID); err != nil {
			return nil, fmt.Errorf("failed to insert meal unit %d of %d: %w", i+1, count, err)
		}
		if _, err := tx.Exec(ctx, insertRecord, unitID); err != nil {
			return nil, fmt.Errorf("failed to insert ledger record for unit %d: %w", unitID, err)
		}
		unitIDs = append(unitIDs, unitID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit donation batch: %w", err)
	}
	return unitIDs, nil
}

// FindOldestActiveUnit returns the FIFO head of the pool for a
// (restaurant, menu item) pair: the Active unit with the smallest creation
// timestamp, ties broken by id.
func (r *PostgresRepository) FindOldestActiveUnit(ctx context.Context, restaurantID, menuItemID int64) (*domain.MealUnit, error) {
	var unit domain.MealUnit
	query := `
		SELECT id, restaurant_id, donor_id, menu_item_id, quantity, status, created_at, expires_at
		FROM meal_units
		WHERE restaurant_id = $1 AND menu_item_id = $2 AND status = 'Active'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, restaurantID, menuItemID).Scan(
		&unit.ID, &unit.RestaurantID, &unit.DonorID, &unit.MenuItemID,
		&unit.Quantity, &unit.Status, &unit.CreatedAt, &unit.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoMealAvailable
		}
		return nil, err
	}
	return &unit, nil
}

// CountUsedToday counts a recipient's Used redemption records with a
// redemption time at or after local midnight (database clock).
func (r *PostgresRepository) CountUsedToday(ctx context.Context, recipientID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM redemption_records
		WHERE recipient_id = $1
		  AND action = 'Used'
		  AND redeemed_at >= date_trunc('day', NOW())
	`
	if err := r.db.QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// InsertPendingCode mints a code-bearing Created record against a unit that
// has already been selected. The partial unique index on pending codes turns
// a clash with another live code into ErrCodeCollision.
func (r *PostgresRepository) InsertPendingCode(ctx context.Context, unitID, recipientID int64, code string) (int64, error) {
	var recordID int64
	query := `
		INSERT INTO redemption_records (meal_unit_id, recipient_id, action, one_time_code)
		VALUES ($1, $2, 'Created', $3)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query, unitID, recipientID, code).Scan(&recordID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrCodeCollision
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, ErrUnitNotFound
		}
		return 0, err
	}
	return recordID, nil
}

// IssuePendingCode performs the hardened code-issuance path: lock the oldest
// Active unit that carries no live pending code, then insert the pending
// record, all in one transaction. SKIP LOCKED makes concurrent requests for
// the same pool fall through to the next unit instead of blocking, and the
// NOT EXISTS guard means a unit can never have two live codes at once.
// The unit itself stays Active; the pool is not reduced until redemption.
func (r *PostgresRepository) IssuePendingCode(ctx context.Context, restaurantID, menuItemID, recipientID int64, code string) (*domain.MealUnit, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var unit domain.MealUnit
	selectQuery := `
		SELECT mu.id, mu.restaurant_id, mu.donor_id, mu.menu_item_id, mu.quantity, mu.status, mu.created_at, mu.expires_at
		FROM meal_units mu
		WHERE mu.restaurant_id = $1
		  AND mu.menu_item_id = $2
		  AND mu.status = 'Active'
		  AND NOT EXISTS (
			SELECT 1 FROM redemption_records rr
			WHERE rr.meal_unit_id = mu.id
			  AND rr.action = 'Created'
			  AND rr.one_time_code IS NOT NULL
		  )
		ORDER BY mu.created_at ASC, mu.id ASC
		LIMIT 1
		FOR UPDATE OF mu SKIP LOCKED
	`
	err = tx.QueryRow(ctx, selectQuery, restaurantID, menuItemID).Scan(
		&unit.ID, &unit.RestaurantID, &unit.DonorID, &unit.MenuItemID,
		&unit.Quantity, &unit.Status, &unit.CreatedAt, &unit.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, 0, ErrNoMealAvailable
		}
		return nil, 0, fmt.Errorf("failed to select and lock meal unit: %w", err)
	}

	var recordID int64
	insertQuery := `
		INSERT INTO redemption_records (meal_unit_id, recipient_id, action, one_time_code)
		VALUES ($1, $2, 'Created', $3)
		RETURNING id
	`
	if err := tx.QueryRow(ctx, insertQuery, unit.ID, recipientID, code).Scan(&recordID); err != nil {
		if isUniqueViolation(err) {
			return nil, 0, ErrCodeCollision
		}
		return nil, 0, fmt.Errorf("failed to insert pending code record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to commit code issuance: %w", err)
	}
	return &unit, recordID, nil
}

// FindRecordByCode joins a redemption record to its meal unit and menu item.
// Code values are never reclaimed, so a used code can theoretically coexist
// with a later pending one bearing the same digits; the oldest record wins,
// which keeps a redeemed code answering AlreadyRedeemed forever.
func (r *PostgresRepository) FindRecordByCode(ctx context.Context, code string) (*domain.CodeRedemptionView, error) {
	var view domain.CodeRedemptionView
	query := `
		SELECT rr.id, rr.meal_unit_id, rr.action, rr.one_time_code,
		       mu.status, mu.restaurant_id, mu.menu_item_id, mt.name
		FROM redemption_records rr
		JOIN meal_units mu ON rr.meal_unit_id = mu.id
		JOIN menu_items mt ON mu.menu_item_id = mt.id
		WHERE rr.one_time_code = $1
		ORDER BY rr.created_at ASC, rr.id ASC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, code).Scan(
		&view.RecordID, &view.MealUnitID, &view.Action, &view.OneTimeCode,
		&view.UnitStatus, &view.RestaurantID, &view.MenuItemID, &view.MealName,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &view, nil
}

// MarkRedeemed settles a redemption: the unit goes Active -> Used and the
// record goes Created -> Used, stamped with staff and redemption time, in one
// transaction. Both updates guard on the current state, so of two concurrent
// attempts exactly one commits; the loser sees ErrAlreadyRedeemed.
func (r *PostgresRepository) MarkRedeemed(ctx context.Context, recordID, unitID, staffID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	unitResult, err := tx.Exec(ctx,
		`UPDATE meal_units SET status = 'Used' WHERE id = $1 AND status = 'Active'`,
		unitID,
	)
	if err != nil {
		return fmt.Errorf("failed to update meal unit status: %w", err)
	}
	if unitResult.RowsAffected() == 0 {
		return ErrAlreadyRedeemed
	}

	recordResult, err := tx.Exec(ctx,
		`UPDATE redemption_records
		 SET action = 'Used', staff_id = $1, redeemed_at = NOW()
		 WHERE id = $2 AND action = 'Created'`,
		staffID, recordID,
	)
	if err != nil {
		return fmt.Errorf("failed to update redemption record: %w", err)
	}
	if recordResult.RowsAffected() == 0 {
		return ErrAlreadyRedeemed
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit redemption: %w", err)
	}
	return nil
}

// ListAvailablePool aggregates Active units per menu item for a restaurant.
// Units with a pending code still count: the pool shrinks at redemption, not
// at code issuance.
func (r *PostgresRepository) ListAvailablePool(ctx context.Context, restaurantID int64) ([]domain.PoolEntry, error) {
	query := `
		SELECT mu.menu_item_id, mt.name, mt.price, COUNT(*)
		FROM meal_units mu
		JOIN menu_items mt ON mu.menu_item_id = mt.id
		WHERE mu.restaurant_id = $1 AND mu.status = 'Active'
		GROUP BY mu.menu_item_id, mt.name, mt.price
		ORDER BY mt.name ASC
	`
	rows, err := r.db.Query(ctx, query, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.PoolEntry
	for rows.Next() {
		var entry domain.PoolEntry
		if err := rows.Scan(&entry.MenuItemID, &entry.MealName, &entry.Price, &entry.Count); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListActiveRestaurants returns the active restaurants for recipient-facing
// listings. Catalog management lives elsewhere; this is a read-only lookup.
func (r *PostgresRepository) ListActiveRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	query := `
		SELECT id, name, COALESCE(city, ''), COALESCE(district, ''), image_url, is_active
		FROM restaurants
		WHERE is_active = TRUE
		ORDER BY name ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var restaurants []domain.Restaurant
	for rows.Next() {
		var restaurant domain.Restaurant
		if err := rows.Scan(&restaurant.ID, &restaurant.Name, &restaurant.City, &restaurant.District, &restaurant.ImageURL, &restaurant.IsActive); err != nil {
			return nil, err
		}
		restaurants = append(restaurants, restaurant)
	}
	return restaurants, rows.Err()
}

// ListAvailableMenu returns the available menu items for one restaurant.
func (r *PostgresRepository) ListAvailableMenu(ctx context.Context, restaurantID int64) ([]domain.MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, price, image_url, is_available
		FROM menu_items
		WHERE restaurant_id = $1 AND is_available = TRUE
		ORDER BY name ASC
	`
	rows, err := r.db.Query(ctx, query, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.MenuItem
	for rows.Next() {
		var item domain.MenuItem
		if err := rows.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Price, &item.ImageURL, &item.IsAvailable); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetSystemStats returns the admin dashboard aggregates.
func (r *PostgresRepository) GetSystemStats(ctx context.Context) (*domain.SystemStats, error) {
	var stats domain.SystemStats
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM restaurants),
			(SELECT COALESCE(SUM(quantity), 0) FROM meal_units WHERE status = 'Active'),
			(SELECT COALESCE(SUM(quantity), 0) FROM meal_units WHERE status = 'Used')
	`
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalUsers, &stats.TotalRestaurants, &stats.ActiveMeals, &stats.RedeemedMeals,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetDistrictHeatmap counts Active meals grouped by restaurant district.
func (r *PostgresRepository) GetDistrictHeatmap(ctx context.Context) ([]domain.DistrictMealCount, error) {
	query := `
		SELECT COALESCE(re.district, ''), COUNT(mu.id)
		FROM meal_units mu
		JOIN restaurants re ON mu.restaurant_id = re.id
		WHERE mu.status = 'Active'
		GROUP BY re.district
		ORDER BY COUNT(mu.id) DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []domain.DistrictMealCount
	for rows.Next() {
		var bucket domain.DistrictMealCount
		if err := rows.Scan(&bucket.District, &bucket.MealCount); err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}
