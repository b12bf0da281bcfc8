/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the meal-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * The repository is the sole owner of the meal_units and redemption_records
 * tables: the issuer, broker, and validator never talk to each other directly,
 * only through these transactional operations.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/askida/meal-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Donation methods
	// CreateUnits inserts `count` Active meal units plus one Created
	// redemption record per unit as a single transaction. Either the whole
	// batch commits or none of it does. Returns the new unit ids.
	CreateUnits(ctx context.Context, restaurantID int64, donorID *int64, menuItemID int64, count int) ([]int64, error)

	// Code issuance methods
	// FindOldestActiveUnit returns the Active unit with the smallest creation
	// timestamp for the (restaurant, menu item) pair, or ErrNoMealAvailable.
	FindOldestActiveUnit(ctx context.Context, restaurantID, menuItemID int64) (*domain.MealUnit, error)
	// CountUsedToday counts the recipient's Used redemption records since
	// local midnight. Input to the daily quota check.
	CountUsedToday(ctx context.Context, recipientID int64) (int, error)
	// InsertPendingCode creates a code-bearing Created record against an
	// already-selected unit. Returns ErrCodeCollision if the code clashes
	// with another live pending code.
	InsertPendingCode(ctx context.Context, unitID, recipientID int64, code string) (int64, error)
	// IssuePendingCode selects the oldest Active unit without a live pending
	// code and inserts the pending record, all inside one transaction with a
	// row lock on the unit. Two concurrent requests can never bind two live
	// codes to the same unit.
	IssuePendingCode(ctx context.Context, restaurantID, menuItemID, recipientID int64, code string) (*domain.MealUnit, int64, error)

	// Redemption methods
	// FindRecordByCode joins the redemption record to its unit and menu item.
	FindRecordByCode(ctx context.Context, code string) (*domain.CodeRedemptionView, error)
	// MarkRedeemed flips the unit to Used and the record to Used in one
	// transaction, stamping staff and redemption time. Returns
	// ErrAlreadyRedeemed if either row has already left its pending state.
	MarkRedeemed(ctx context.Context, recordID, unitID, staffID int64) error

	// Pool and catalog methods (read-only)
	ListAvailablePool(ctx context.Context, restaurantID int64) ([]domain.PoolEntry, error)
	ListActiveRestaurants(ctx context.Context) ([]domain.Restaurant, error)
	ListAvailableMenu(ctx context.Context, restaurantID int64) ([]domain.MenuItem, error)

	// Admin methods
	GetSystemStats(ctx context.Context) (*domain.SystemStats, error)
	GetDistrictHeatmap(ctx context.Context) ([]domain.DistrictMealCount, error)
}
