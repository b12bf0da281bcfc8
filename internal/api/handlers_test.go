package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/askida/meal-service/internal/app"
	"github.com/askida/meal-service/internal/domain"
	"github.com/askida/meal-service/internal/store"
)

// routerRepoStub backs the service with canned repository behavior so the
// tests can drive requests through the full router, auth included.
type routerRepoStub struct {
	store.Repository

	createErr error
	usedToday int
	issueErr  error
	view      *domain.CodeRedemptionView
	findErr   error
	markErr   error
}

func (s *routerRepoStub) CreateUnits(ctx context.Context, restaurantID int64, donorID *int64, menuItemID int64, count int) ([]int64, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	ids := make([]int64, count)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids, nil
}

func (s *routerRepoStub) CountUsedToday(ctx context.Context, recipientID int64) (int, error) {
	return s.usedToday, nil
}

func (s *routerRepoStub) IssuePendingCode(ctx context.Context, restaurantID, menuItemID, recipientID int64, code string) (*domain.MealUnit, int64, error) {
	if s.issueErr != nil {
		return nil, 0, s.issueErr
	}
	return &domain.MealUnit{ID: 11, RestaurantID: restaurantID, MenuItemID: menuItemID, Status: domain.UnitStatusActive}, 42, nil
}

func (s *routerRepoStub) FindRecordByCode(ctx context.Context, code string) (*domain.CodeRedemptionView, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.view, nil
}

func (s *routerRepoStub) MarkRedeemed(ctx context.Context, recordID, unitID, staffID int64) error {
	return s.markErr
}

func newTestRouter(repo store.Repository) http.Handler {
	svc := app.NewService(repo, nil, 2, 5)
	return Routes(NewMealHandlers(svc), testSecret)
}

func bearerToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return "Bearer " + signToken(t, testSecret, claims)
}

func doRequest(t *testing.T, handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDonateEndpoint(t *testing.T) {
	donor := jwt.MapClaims{"sub": 5, "role": domain.RoleDonor}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "creates units", body: `{"restaurant_id": 1, "menu_item_id": 2, "quantity": 3}`, wantStatus: http.StatusCreated},
		{name: "zero quantity", body: `{"restaurant_id": 1, "menu_item_id": 2, "quantity": 0}`, wantStatus: http.StatusBadRequest},
		{name: "missing references", body: `{"quantity": 3}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&routerRepoStub{})
			rec := doRequest(t, router, http.MethodPost, "/meals/donate", bearerToken(t, donor), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDonateEndpoint_RejectsRecipients(t *testing.T) {
	router := newTestRouter(&routerRepoStub{})
	token := bearerToken(t, jwt.MapClaims{"sub": 5, "role": domain.RoleRecipient})

	rec := doRequest(t, router, http.MethodPost, "/meals/donate", token, `{"restaurant_id": 1, "menu_item_id": 2, "quantity": 1}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a recipient donating, got %d", rec.Code)
	}
}

func TestRequestCodeEndpoint(t *testing.T) {
	recipient := jwt.MapClaims{"sub": 8, "role": domain.RoleRecipient}
	body := `{"restaurant_id": 1, "menu_item_id": 2}`

	tests := []struct {
		name       string
		repo       *routerRepoStub
		wantStatus int
	}{
		{name: "issues a code", repo: &routerRepoStub{}, wantStatus: http.StatusOK},
		{name: "quota reached", repo: &routerRepoStub{usedToday: 2}, wantStatus: http.StatusForbidden},
		{name: "pool empty", repo: &routerRepoStub{issueErr: store.ErrNoMealAvailable}, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.repo)
			rec := doRequest(t, router, http.MethodPost, "/redemptions/request-code", bearerToken(t, recipient), body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var resp struct {
					Code string `json:"code"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if len(resp.Code) != 6 {
					t.Fatalf("expected a 6-digit code, got %q", resp.Code)
				}
			}
		})
	}
}

func TestRedeemEndpoint(t *testing.T) {
	staff := jwt.MapClaims{"sub": 31, "role": domain.RoleStaff, "restaurant_id": 7}
	body := `{"code": "123456"}`

	usedView := pendingView()
	usedView.UnitStatus = domain.UnitStatusUsed

	foreignView := pendingView()
	foreignView.RestaurantID = 99

	tests := []struct {
		name       string
		repo       *routerRepoStub
		body       string
		wantStatus int
	}{
		{name: "settles the code", repo: &routerRepoStub{view: pendingView()}, body: body, wantStatus: http.StatusOK},
		{name: "empty code", repo: &routerRepoStub{view: pendingView()}, body: `{"code": "  "}`, wantStatus: http.StatusBadRequest},
		{name: "unknown code", repo: &routerRepoStub{findErr: store.ErrCodeNotFound}, body: body, wantStatus: http.StatusNotFound},
		{name: "spent code", repo: &routerRepoStub{view: usedView}, body: body, wantStatus: http.StatusConflict},
		{name: "foreign restaurant", repo: &routerRepoStub{view: foreignView}, body: body, wantStatus: http.StatusForbidden},
		{name: "settlement race", repo: &routerRepoStub{view: pendingView(), markErr: store.ErrAlreadyRedeemed}, body: body, wantStatus: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.repo)
			rec := doRequest(t, router, http.MethodPost, "/redemptions/redeem", bearerToken(t, staff), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var resp struct {
					MealName string `json:"meal_name"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.MealName == "" {
					t.Fatal("expected the meal name in the confirmation")
				}
			}
		})
	}
}

func TestRedeemEndpoint_StaffWithoutRestaurant(t *testing.T) {
	router := newTestRouter(&routerRepoStub{view: pendingView()})
	token := bearerToken(t, jwt.MapClaims{"sub": 31, "role": domain.RoleStaff})

	rec := doRequest(t, router, http.MethodPost, "/redemptions/redeem", token, `{"code": "123456"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff without a restaurant, got %d", rec.Code)
	}
}

// pendingView builds a code lookup result in its redeemable state.
func pendingView() *domain.CodeRedemptionView {
	return &domain.CodeRedemptionView{
		RecordID:     21,
		MealUnitID:   11,
		Action:       domain.ActionCreated,
		OneTimeCode:  "123456",
		UnitStatus:   domain.UnitStatusActive,
		RestaurantID: 7,
		MenuItemID:   3,
		MealName:     "Kuru Fasulye",
	}
}
