/**
 * @description
 * This file contains the HTTP handlers for the meal-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Protocol errors map onto stable HTTP statuses so clients can branch on them:
 * quota 403, empty pool 404, unknown code 404, spent code 409, foreign
 * restaurant 403, malformed input 400, rate limit 429.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http, strconv: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/askida/meal-service/internal/app"
	"github.com/askida/meal-service/internal/domain"
	"github.com/askida/meal-service/internal/store"
)

// MealHandlers holds the application service that handlers will use.
type MealHandlers struct {
	service *app.Service
}

// NewMealHandlers creates a new instance of MealHandlers.
func NewMealHandlers(service *app.Service) *MealHandlers {
	return &MealHandlers{service: service}
}

type donationResponse struct {
	UnitsCreated int    `json:"units_created"`
	Message      string `json:"message"`
}

type codeResponse struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	MealName string `json:"meal_name"`
	Message  string `json:"message"`
}

// DonateHandler handles donor requests to suspend meals.
func (h *MealHandlers) DonateHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentity(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.DonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	donorID := &identity.UserID
	created, err := h.service.IssueDonation(r.Context(), donorID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidQuantity), errors.Is(err, app.ErrInvalidReference):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api msg=\"donation failed\" donor_id=%d err=%v", identity.UserID, err)
			h.writeError(w, http.StatusInternalServerError, "Donation could not be recorded")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, donationResponse{
		UnitsCreated: created,
		Message:      "Meals suspended successfully",
	})
}

// RequestCodeHandler handles a recipient asking for a one-time code.
func (h *MealHandlers) RequestCodeHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentity(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req domain.CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	code, err := h.service.RequestCode(r.Context(), identity.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidReference):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Too many code requests. Please wait a moment.")
		case errors.Is(err, app.ErrQuotaExceeded):
			h.writeError(w, http.StatusForbidden, "Daily meal redemption limit reached.")
		case errors.Is(err, store.ErrNoMealAvailable):
			h.writeError(w, http.StatusNotFound, "No suspended meal left for this menu item.")
		default:
			log.Printf("level=error component=api msg=\"code request failed\" recipient_id=%d err=%v", identity.UserID, err)
			h.writeError(w, http.StatusInternalServerError, "Could not issue a code")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, codeResponse{Code: code})
}

// RedeemHandler handles staff submitting a code for settlement.
func (h *MealHandlers) RedeemHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := GetIdentity(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if identity.RestaurantID == nil {
		h.writeError(w, http.StatusForbidden, "Caller is not attached to a restaurant")
		return
	}

	var req domain.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mealName, err := h.service.RedeemCode(r.Context(), identity.UserID, *identity.RestaurantID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmptyCode):
			h.writeError(w, http.StatusBadRequest, "Please enter a code.")
		case errors.Is(err, store.ErrCodeNotFound):
			h.writeError(w, http.StatusNotFound, "Invalid code. No such code was found.")
		case errors.Is(err, store.ErrAlreadyRedeemed):
			h.writeError(w, http.StatusConflict, "This code has already been used.")
		case errors.Is(err, app.ErrWrongRestaurant):
			h.writeError(w, http.StatusForbidden, "This code is not valid for this restaurant.")
		case errors.Is(err, app.ErrInvalidCodeState):
			h.writeError(w, http.StatusBadRequest, "Code is not in a redeemable state.")
		default:
			log.Printf("level=error component=api msg=\"redemption failed\" staff_id=%d err=%v", identity.UserID, err)
			h.writeError(w, http.StatusInternalServerError, "Could not redeem the code")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, redeemResponse{
		MealName: mealName,
		Message:  "Confirmed. Enjoy your meal!",
	})
}

// PoolHandler lists the Active pool for one restaurant, aggregated per menu item.
func (h *MealHandlers) PoolHandler(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := h.pathID(w, r, "restaurantID")
	if !ok {
		return
	}

	entries, err := h.service.AvailablePool(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, app.ErrInvalidReference) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api msg=\"pool listing failed\" restaurant_id=%d err=%v", restaurantID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not list the meal pool")
		return
	}
	if entries == nil {
		entries = []domain.PoolEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// ListRestaurantsHandler lists active restaurants.
func (h *MealHandlers) ListRestaurantsHandler(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.service.ActiveRestaurants(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"restaurant listing failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not list restaurants")
		return
	}
	if restaurants == nil {
		restaurants = []domain.Restaurant{}
	}
	h.writeJSON(w, http.StatusOK, restaurants)
}

// MenuHandler lists available menu items for one restaurant.
func (h *MealHandlers) MenuHandler(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := h.pathID(w, r, "restaurantID")
	if !ok {
		return
	}

	items, err := h.service.AvailableMenu(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, app.ErrInvalidReference) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api msg=\"menu listing failed\" restaurant_id=%d err=%v", restaurantID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not list the menu")
		return
	}
	if items == nil {
		items = []domain.MenuItem{}
	}
	h.writeJSON(w, http.StatusOK, items)
}

// StatsHandler returns admin dashboard aggregates.
func (h *MealHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SystemStats(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"stats query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not compute stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// HeatmapHandler returns Active meal counts grouped by district.
func (h *MealHandlers) HeatmapHandler(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.DistrictHeatmap(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"heatmap query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not compute heatmap")
		return
	}
	if buckets == nil {
		buckets = []domain.DistrictMealCount{}
	}
	h.writeJSON(w, http.StatusOK, buckets)
}

// pathID parses a positive int64 URL parameter or writes a 400.
func (h *MealHandlers) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}

// writeJSON is a helper for writing JSON responses.
func (h *MealHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *MealHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
