/**
 * @description
 * This file sets up the HTTP router for the meal-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/askida/meal-service/internal/domain"
)

// Routes creates and returns the router for the meal service.
func Routes(h *MealHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public read-only catalog and pool listings.
	r.Route("/meals", func(r chi.Router) {
		r.Get("/restaurants", h.ListRestaurantsHandler)
		r.Get("/menu/{restaurantID}", h.MenuHandler)
		r.Get("/pool/{restaurantID}", h.PoolHandler)

		// Donations require an authenticated donor.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))
			r.With(RequireRole(domain.RoleDonor, domain.RoleAdmin)).Post("/donate", h.DonateHandler)
		})
	})

	// Redemption protocol endpoints, role-scoped.
	r.Route("/redemptions", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.With(RequireRole(domain.RoleRecipient)).Post("/request-code", h.RequestCodeHandler)
		r.With(RequireRole(domain.RoleStaff, domain.RoleRestaurant)).Post("/redeem", h.RedeemHandler)
	})

	// Admin aggregates.
	r.Route("/admin", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Use(RequireRole(domain.RoleAdmin))
		r.Get("/stats", h.StatsHandler)
		r.Get("/heatmap", h.HeatmapHandler)
	})

	return r
}
