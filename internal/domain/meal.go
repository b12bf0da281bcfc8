/**
 * @description
 * This file defines the core domain models for the meal-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests and database models ensures clear
 *   separation of concerns and type safety.
 * - Prices are stored as `int64` to represent the value in the smallest
 *   currency unit (kurus), which avoids floating-point inaccuracies.
 * - All entity identifiers are int64 surrogate keys end-to-end. Restaurant
 *   scoping is always compared as int64, never through string coercion.
 */

package domain

import "time"

// Meal unit lifecycle statuses. Transitions are one-directional: a unit
// leaves Active exactly once and never returns.
const (
	UnitStatusActive    = "Active"
	UnitStatusUsed      = "Used"
	UnitStatusExpired   = "Expired"
	UnitStatusCancelled = "Cancelled"
)

// Redemption record actions. A record is minted as Created; the code-bearing
// Created record is the authoritative redemption ticket until it becomes Used.
const (
	ActionCreated   = "Created"
	ActionUsed      = "Used"
	ActionExpired   = "Expired"
	ActionCancelled = "Cancelled"
)

// User roles as issued by the identity provider.
const (
	RoleAdmin      = "Admin"
	RoleDonor      = "Donor"
	RoleRecipient  = "Recipient"
	RoleStaff      = "Staff"
	RoleRestaurant = "Restaurant"
)

// MealUnit is one donated, redeemable meal instance. Bulk donations create
// N independent units; Quantity is always 1 per unit.
type MealUnit struct {
	ID           int64      `json:"id"`
	RestaurantID int64      `json:"restaurant_id"`
	DonorID      *int64     `json:"donor_id,omitempty"` // nil for anonymized donors
	MenuItemID   int64      `json:"menu_item_id"`
	Quantity     int        `json:"quantity"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// RedemptionRecord is the append-only ledger entry tied to a meal unit.
// A unit accumulates records over its life: a Created record at donation
// time, a code-bearing Created record once a recipient requests a code,
// updated in place to Used at redemption.
type RedemptionRecord struct {
	ID          int64      `json:"id"`
	MealUnitID  int64      `json:"meal_unit_id"`
	StaffID     *int64     `json:"staff_id,omitempty"`
	RecipientID *int64     `json:"recipient_id,omitempty"`
	Action      string     `json:"action"`
	OneTimeCode *string    `json:"one_time_code,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
}

// CodeRedemptionView is the record-to-unit join the validator operates on.
// It carries everything needed to run the redemption checks without a
// second round trip.
type CodeRedemptionView struct {
	RecordID     int64
	MealUnitID   int64
	Action       string
	OneTimeCode  string
	UnitStatus   string
	RestaurantID int64
	MenuItemID   int64
	MealName     string
}

// Restaurant is a read-only catalog view. Restaurant management lives in an
// external collaborator; this service only looks restaurants up.
type Restaurant struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	City     string  `json:"city"`
	District string  `json:"district"`
	ImageURL *string `json:"image_url,omitempty"`
	IsActive bool    `json:"is_active"`
}

// MenuItem is a read-only catalog view of one dish offered by a restaurant.
type MenuItem struct {
	ID           int64   `json:"id"`
	RestaurantID int64   `json:"restaurant_id"`
	Name         string  `json:"name"`
	Price        int64   `json:"price"` // in kurus
	ImageURL     *string `json:"image_url,omitempty"`
	IsAvailable  bool    `json:"is_available"`
}

// PoolEntry is one row of the recipient-facing availability listing:
// Active units aggregated per menu item for a restaurant.
type PoolEntry struct {
	MenuItemID int64  `json:"menu_item_id"`
	MealName   string `json:"meal_name"`
	Price      int64  `json:"price"` // in kurus
	Count      int    `json:"count"`
}

// DonationRequest is the DTO for incoming donation API requests. The donor
// id comes from the authenticated identity, not the payload.
type DonationRequest struct {
	RestaurantID int64 `json:"restaurant_id"`
	MenuItemID   int64 `json:"menu_item_id"`
	Quantity     int   `json:"quantity"`
}

// CodeRequest is the DTO for a recipient asking for a one-time code.
type CodeRequest struct {
	RestaurantID int64 `json:"restaurant_id"`
	MenuItemID   int64 `json:"menu_item_id"`
}

// RedeemRequest is the DTO for staff submitting a code. Staff and restaurant
// identity come from the token, so a code can never be redeemed outside the
// acting staff's own restaurant scope.
type RedeemRequest struct {
	Code string `json:"code"`
}

// Identity is the resolved caller as issued by the external identity
// provider: who they are, what they may do, and which restaurant they act for.
type Identity struct {
	UserID       int64
	Role         string
	RestaurantID *int64
}

// SystemStats is the admin dashboard aggregate.
type SystemStats struct {
	TotalUsers       int64 `json:"total_users"`
	TotalRestaurants int64 `json:"total_restaurants"`
	ActiveMeals      int64 `json:"active_meals"`
	RedeemedMeals    int64 `json:"redeemed_meals"`
}

// DistrictMealCount is one heatmap bucket: Active meals per district.
type DistrictMealCount struct {
	District  string `json:"district"`
	MealCount int64  `json:"meal_count"`
}
