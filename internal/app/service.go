/**
 * @description
 * This file contains the core business logic for the meal-service. The `Service`
 * struct hosts the three protocol components over the meal ledger: the donation
 * issuer, the redemption code broker, and the redemption validator. It holds no
 * state between requests; all state lives behind the store.Repository.
 *
 * Key features:
 * - Donation issuance: one atomic batch write per donation, never a partial count.
 * - Code brokering: daily quota, FIFO unit selection with a row lock, uniformly
 *   random 6-digit codes with bounded collision retry.
 * - Redemption validation: staff-scoped, idempotent-reject state machine; the
 *   only mutation is the atomic two-table settlement.
 * - Publishes ledger events to RabbitMQ for asynchronous audit/analytics consumers.
 *
 * @dependencies
 * - context, crypto/rand, errors, fmt, log, strconv, time: Standard Go libraries.
 * - github.com/google/uuid: Event envelope identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For ledger event publishing.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askida/meal-service/internal/domain"
	"github.com/askida/meal-service/internal/store"
	"github.com/askida/meal-service/pkg/rabbitmq"
)

var (
	ErrInvalidQuantity  = errors.New("donation quantity must be a positive integer")
	ErrInvalidReference = errors.New("restaurant and menu item ids must be positive")
	ErrQuotaExceeded    = errors.New("daily redemption quota reached")
	ErrEmptyCode        = errors.New("redemption code must not be empty")
	ErrWrongRestaurant  = errors.New("code was issued for a different restaurant")
	ErrInvalidCodeState = errors.New("redemption record is not pending")
	ErrRateLimited      = errors.New("too many code requests; slow down")
	ErrCodeSpaceBusy    = errors.New("could not mint a unique code after retries")
)

// Code space boundaries: a uniformly random 6-digit numeric string,
// 100000-999999 inclusive, independent of any unit or restaurant identifier.
const (
	codeMin  = 100000
	codeSpan = 900000
)

// RateLimiter is the distributed limiter consulted before a code request is
// brokered. A nil limiter disables the check.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the suspended-meal protocol.
type Service struct {
	repo            store.Repository
	eventProducer   rabbitmq.Publisher
	dailyLimit      int
	maxCodeAttempts int

	rateLimiter        RateLimiter
	codeRequestsPerMin int
}

// NewService creates a new meal service instance. dailyLimit is the per-recipient
// per-day redemption ceiling; maxCodeAttempts bounds collision retries when
// minting one-time codes.
func NewService(repo store.Repository, producer rabbitmq.Publisher, dailyLimit, maxCodeAttempts int) *Service {
	if dailyLimit < 1 {
		dailyLimit = 2
	}
	if maxCodeAttempts < 1 {
		maxCodeAttempts = 5
	}
	return &Service{
		repo:            repo,
		eventProducer:   producer,
		dailyLimit:      dailyLimit,
		maxCodeAttempts: maxCodeAttempts,
	}
}

// SetCodeRequestRateLimiter wires a distributed rate limiter for code requests.
func (s *Service) SetCodeRequestRateLimiter(limiter RateLimiter, requestsPerMinute int) {
	s.rateLimiter = limiter
	s.codeRequestsPerMin = requestsPerMinute
}

// IssueDonation converts a donor's paid donation into `quantity` independent
// Active units. The repository call is the atomicity boundary: on any failure
// the donation is not recorded at all. donorID may be nil for anonymized
// donations. Payment capture happens before this is ever invoked.
func (s *Service) IssueDonation(ctx context.Context, donorID *int64, req domain.DonationRequest) (int, error) {
	if req.Quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	if req.RestaurantID < 1 || req.MenuItemID < 1 {
		return 0, ErrInvalidReference
	}

	unitIDs, err := s.repo.CreateUnits(ctx, req.RestaurantID, donorID, req.MenuItemID, req.Quantity)
	if err != nil {
		return 0, fmt.Errorf("donation not recorded: %w", err)
	}

	s.publishLedgerEvent(ctx, rabbitmq.RoutingKeyMealDonated, "donated", req.RestaurantID, req.MenuItemID, unitIDs)
	return len(unitIDs), nil
}

// RequestCode turns a recipient's intent into a single-use code bound to
// exactly one pooled unit. Quota first, then FIFO selection and pending-code
// insertion in one repository transaction, with a bounded retry loop around
// random code collisions.
func (s *Service) RequestCode(ctx context.Context, recipientID int64, req domain.CodeRequest) (string, error) {
	if req.RestaurantID < 1 || req.MenuItemID < 1 {
		return "", ErrInvalidReference
	}

	if s.rateLimiter != nil && s.codeRequestsPerMin > 0 {
		count, _, err := s.rateLimiter.ConsumeRateLimit(ctx, "request_code", strconv.FormatInt(recipientID, 10), s.codeRequestsPerMin, time.Minute)
		if err != nil {
			// The limiter is an abuse shield, not a correctness dependency.
			log.Printf("level=warn component=service msg=\"rate limiter unavailable; skipping\" recipient_id=%d err=%v", recipientID, err)
		} else if count > s.codeRequestsPerMin {
			return "", ErrRateLimited
		}
	}

	used, err := s.repo.CountUsedToday(ctx, recipientID)
	if err != nil {
		return "", fmt.Errorf("failed to compute daily quota: %w", err)
	}
	if used >= s.dailyLimit {
		return "", ErrQuotaExceeded
	}

	for attempt := 0; attempt < s.maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}

		_, _, err = s.repo.IssuePendingCode(ctx, req.RestaurantID, req.MenuItemID, recipientID, code)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, store.ErrCodeCollision) {
			continue
		}
		if errors.Is(err, store.ErrNoMealAvailable) {
			return "", err
		}
		return "", fmt.Errorf("failed to issue pending code: %w", err)
	}
	return "", ErrCodeSpaceBusy
}

// RedeemCode is the staff-facing validator and settlement step. Every check
// runs before the single mutating call; once any check fails, no state
// changes. Returns the meal name for the confirmation message.
func (s *Service) RedeemCode(ctx context.Context, staffID, staffRestaurantID int64, rawCode string) (string, error) {
	code := normalizeCode(rawCode)
	if code == "" {
		return "", ErrEmptyCode
	}

	view, err := s.repo.FindRecordByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return "", err
		}
		return "", fmt.Errorf("failed to look up code: %w", err)
	}

	// Idempotent double-submission protection comes before scoping, so a
	// spent code reads as spent even from the wrong restaurant.
	if view.UnitStatus == domain.UnitStatusUsed || view.Action == domain.ActionUsed {
		return "", store.ErrAlreadyRedeemed
	}
	if view.RestaurantID != staffRestaurantID {
		return "", ErrWrongRestaurant
	}
	if view.Action != domain.ActionCreated {
		return "", ErrInvalidCodeState
	}

	if err := s.repo.MarkRedeemed(ctx, view.RecordID, view.MealUnitID, staffID); err != nil {
		if errors.Is(err, store.ErrAlreadyRedeemed) {
			return "", err
		}
		return "", fmt.Errorf("failed to settle redemption: %w", err)
	}

	s.publishLedgerEvent(ctx, rabbitmq.RoutingKeyMealRedeemed, "redeemed", view.RestaurantID, view.MenuItemID, []int64{view.MealUnitID})
	return view.MealName, nil
}

// AvailablePool lists a restaurant's Active units aggregated per menu item.
func (s *Service) AvailablePool(ctx context.Context, restaurantID int64) ([]domain.PoolEntry, error) {
	if restaurantID < 1 {
		return nil, ErrInvalidReference
	}
	return s.repo.ListAvailablePool(ctx, restaurantID)
}

// ActiveRestaurants lists the restaurants recipients can browse.
func (s *Service) ActiveRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	return s.repo.ListActiveRestaurants(ctx)
}

// AvailableMenu lists a restaurant's available dishes.
func (s *Service) AvailableMenu(ctx context.Context, restaurantID int64) ([]domain.MenuItem, error) {
	if restaurantID < 1 {
		return nil, ErrInvalidReference
	}
	return s.repo.ListAvailableMenu(ctx, restaurantID)
}

// SystemStats returns the admin dashboard aggregates.
func (s *Service) SystemStats(ctx context.Context) (*domain.SystemStats, error) {
	return s.repo.GetSystemStats(ctx)
}

// DistrictHeatmap returns Active meal counts per district.
func (s *Service) DistrictHeatmap(ctx context.Context) ([]domain.DistrictMealCount, error) {
	return s.repo.GetDistrictHeatmap(ctx)
}

// publishLedgerEvent sends a ledger event best-effort: a broker outage must
// never fail a committed ledger write.
func (s *Service) publishLedgerEvent(ctx context.Context, routingKey, action string, restaurantID, menuItemID int64, unitIDs []int64) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.MealLedgerEvent{
		EventID:      uuid.New(),
		Action:       action,
		RestaurantID: restaurantID,
		MenuItemID:   menuItemID,
		MealUnitIDs:  unitIDs,
		Quantity:     len(unitIDs),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.eventProducer.PublishMealLedgerEvent(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"ledger event publish failed\" routing_key=%s event_id=%s err=%v", routingKey, event.EventID, err)
	}
}

// normalizeCode trims surrounding whitespace from a submitted code.
func normalizeCode(raw string) string {
	return strings.TrimSpace(raw)
}

// generateCode mints a uniformly random 6-digit numeric code in
// [100000, 999999] using a cryptographic source.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}
