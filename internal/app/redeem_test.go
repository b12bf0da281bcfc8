package app

import (
	"context"
	"errors"
	"testing"

	"github.com/askida/meal-service/internal/domain"
	"github.com/askida/meal-service/internal/store"
)

type redeemRepoStub struct {
	store.Repository

	view    *domain.CodeRedemptionView
	findErr error
	markErr error

	lookedUpCode string
	markCalled   bool
	markRecordID int64
	markUnitID   int64
	markStaffID  int64
}

func (s *redeemRepoStub) FindRecordByCode(ctx context.Context, code string) (*domain.CodeRedemptionView, error) {
	s.lookedUpCode = code
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.view, nil
}

func (s *redeemRepoStub) MarkRedeemed(ctx context.Context, recordID, unitID, staffID int64) error {
	s.markCalled = true
	s.markRecordID = recordID
	s.markUnitID = unitID
	s.markStaffID = staffID
	return s.markErr
}

func pendingView() *domain.CodeRedemptionView {
	return &domain.CodeRedemptionView{
		RecordID:     21,
		MealUnitID:   11,
		Action:       domain.ActionCreated,
		OneTimeCode:  "123456",
		UnitStatus:   domain.UnitStatusActive,
		RestaurantID: 7,
		MenuItemID:   3,
		MealName:     "Mercimek Corbasi",
	}
}

func TestRedeemCode_RejectsEmptyCode(t *testing.T) {
	repo := &redeemRepoStub{view: pendingView()}
	svc := NewService(repo, nil, 2, 5)

	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := svc.RedeemCode(context.Background(), 1, 7, raw)
		if !errors.Is(err, ErrEmptyCode) {
			t.Fatalf("raw %q: expected ErrEmptyCode, got %v", raw, err)
		}
	}
	if repo.lookedUpCode != "" {
		t.Fatalf("expected no lookup for empty codes, looked up %q", repo.lookedUpCode)
	}
}

func TestRedeemCode_TrimsWhitespaceBeforeLookup(t *testing.T) {
	repo := &redeemRepoStub{view: pendingView()}
	svc := NewService(repo, nil, 2, 5)

	if _, err := svc.RedeemCode(context.Background(), 1, 7, "  123456 \n"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.lookedUpCode != "123456" {
		t.Fatalf("expected trimmed code lookup, got %q", repo.lookedUpCode)
	}
}

func TestRedeemCode_CodeNotFound(t *testing.T) {
	repo := &redeemRepoStub{findErr: store.ErrCodeNotFound}
	svc := NewService(repo, nil, 2, 5)

	_, err := svc.RedeemCode(context.Background(), 1, 7, "654321")
	if !errors.Is(err, store.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedeemCode_AlreadyRedeemed(t *testing.T) {
	usedUnit := pendingView()
	usedUnit.UnitStatus = domain.UnitStatusUsed

	usedRecord := pendingView()
	usedRecord.Action = domain.ActionUsed

	tests := []struct {
		name string
		view *domain.CodeRedemptionView
	}{
		{name: "unit already consumed", view: usedUnit},
		{name: "record already used", view: usedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &redeemRepoStub{view: tt.view}
			svc := NewService(repo, nil, 2, 5)

			_, err := svc.RedeemCode(context.Background(), 1, 7, "123456")
			if !errors.Is(err, store.ErrAlreadyRedeemed) {
				t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
			}
			if repo.markCalled {
				t.Fatal("expected no settlement attempt for a spent code")
			}
		})
	}
}

func TestRedeemCode_SpentCodeReadsSpentFromAnyRestaurant(t *testing.T) {
	view := pendingView()
	view.UnitStatus = domain.UnitStatusUsed
	repo := &redeemRepoStub{view: view}
	svc := NewService(repo, nil, 2, 5)

	// Staff from restaurant 99, code issued for restaurant 7.
	_, err := svc.RedeemCode(context.Background(), 1, 99, "123456")
	if !errors.Is(err, store.ErrAlreadyRedeemed) {
		t.Fatalf("expected ErrAlreadyRedeemed before the restaurant check, got %v", err)
	}
}

func TestRedeemCode_WrongRestaurant(t *testing.T) {
	repo := &redeemRepoStub{view: pendingView()}
	svc := NewService(repo, nil, 2, 5)

	_, err := svc.RedeemCode(context.Background(), 1, 99, "123456")
	if !errors.Is(err, ErrWrongRestaurant) {
		t.Fatalf("expected ErrWrongRestaurant, got %v", err)
	}
	if repo.markCalled {
		t.Fatal("expected no settlement attempt for a foreign code")
	}
}

func TestRedeemCode_InvalidCodeState(t *testing.T) {
	view := pendingView()
	view.Action = domain.ActionExpired
	repo := &redeemRepoStub{view: view}
	svc := NewService(repo, nil, 2, 5)

	_, err := svc.RedeemCode(context.Background(), 1, 7, "123456")
	if !errors.Is(err, ErrInvalidCodeState) {
		t.Fatalf("expected ErrInvalidCodeState, got %v", err)
	}
	if repo.markCalled {
		t.Fatal("expected no settlement attempt for a non-pending record")
	}
}

func TestRedeemCode_Success(t *testing.T) {
	repo := &redeemRepoStub{view: pendingView()}
	svc := NewService(repo, nil, 2, 5)

	mealName, err := svc.RedeemCode(context.Background(), 31, 7, "123456")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if mealName != "Mercimek Corbasi" {
		t.Fatalf("expected meal name in the confirmation, got %q", mealName)
	}
	if !repo.markCalled {
		t.Fatal("expected the settlement to run")
	}
	if repo.markRecordID != 21 || repo.markUnitID != 11 || repo.markStaffID != 31 {
		t.Fatalf("unexpected settlement arguments: record=%d unit=%d staff=%d",
			repo.markRecordID, repo.markUnitID, repo.markStaffID)
	}
}

func TestRedeemCode_ConcurrentLoserSeesAlreadyRedeemed(t *testing.T) {
	repo := &redeemRepoStub{view: pendingView(), markErr: store.ErrAlreadyRedeemed}
	svc := NewService(repo, nil, 2, 5)

	_, err := svc.RedeemCode(context.Background(), 1, 7, "123456")
	if !errors.Is(err, store.ErrAlreadyRedeemed) {
		t.Fatalf("expected ErrAlreadyRedeemed from the settlement race, got %v", err)
	}
}
