package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"satlearn/internal/types"
)

type fakeStore struct {
	upserts []types.SubscriptionUpsert
	err     error
}

func (f *fakeStore) Upsert(_ context.Context, sub types.SubscriptionUpsert) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, sub)
	return nil
}

func baseProviderSub() ProviderSubscription {
	return ProviderSubscription{
		ID:               "sub_123",
		CustomerID:       "cus_123",
		Status:           "active",
		Created:          1767225600, // 2026-01-01T00:00:00Z
		CurrentPeriodEnd: 1769904000, // 2026-02-01T00:00:00Z
		PriceID:          "price_premium_monthly",
	}
}

func TestReconcile_ActiveSubscription(t *testing.T) {
	store := &fakeStore{}
	r := NewReconciler(store, nil)

	err := r.Reconcile(context.Background(), baseProviderSub(), "user_1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}

	got := store.upserts[0]
	if got.UserID != "user_1" {
		t.Errorf("UserID = %q, want user_1", got.UserID)
	}
	if got.Tier != types.TierPremium {
		t.Errorf("Tier = %q, want premium", got.Tier)
	}
	if got.Status != types.SubStatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
	if got.StripeSubscriptionID != "sub_123" || got.StripeCustomerID != "cus_123" {
		t.Errorf("provider ids not carried: %+v", got)
	}

	wantStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got.StartDate == nil || !got.StartDate.Equal(wantStart) {
		t.Errorf("StartDate = %v, want %v", got.StartDate, wantStart)
	}
	wantEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if got.EndDate == nil || !got.EndDate.Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", got.EndDate, wantEnd)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := &fakeStore{}
	r := NewReconciler(store, nil)
	ps := baseProviderSub()

	if err := r.Reconcile(context.Background(), ps, "user_1"); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if err := r.Reconcile(context.Background(), ps, "user_1"); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(store.upserts))
	}

	first, second := store.upserts[0], store.upserts[1]
	if first.Status != second.Status || first.Tier != second.Tier ||
		first.StripeSubscriptionID != second.StripeSubscriptionID ||
		!first.StartDate.Equal(*second.StartDate) ||
		!first.EndDate.Equal(*second.EndDate) {
		t.Errorf("repeated reconcile produced different rows:\n%+v\n%+v", first, second)
	}
}

func TestReconcile_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	r := NewReconciler(store, nil)

	if err := r.Reconcile(context.Background(), baseProviderSub(), "user_1"); err == nil {
		t.Fatal("expected error from store, got nil")
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name              string
		providerStatus    string
		cancelAtPeriodEnd bool
		want              types.SubscriptionStatus
	}{
		{"active", "active", false, types.SubStatusActive},
		{"active pending cancel", "active", true, types.SubStatusActiveUntilPeriodEnd},
		{"trialing", "trialing", false, types.SubStatusActive},
		{"past due", "past_due", false, types.SubStatusPastDue},
		{"past due pending cancel stays past due", "past_due", true, types.SubStatusPastDue},
		{"canceled", "canceled", false, types.SubStatusCanceled},
		{"unpaid", "unpaid", false, types.SubStatusCanceled},
		{"incomplete expired", "incomplete_expired", false, types.SubStatusCanceled},
		{"unknown passes through", "paused", false, types.SubscriptionStatus("paused")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(tc.providerStatus, tc.cancelAtPeriodEnd)
			if got != tc.want {
				t.Errorf("DeriveStatus(%q, %v) = %q, want %q",
					tc.providerStatus, tc.cancelAtPeriodEnd, got, tc.want)
			}
		})
	}
}

func TestPaymentFailureStatus(t *testing.T) {
	cases := []struct {
		attempts int
		want     types.SubscriptionStatus
	}{
		{0, types.SubStatusPastDue},
		{1, types.SubStatusPastDue},
		{2, types.SubStatusPastDue},
		{3, types.SubStatusCanceled},
		{4, types.SubStatusCanceled},
	}
	for _, tc := range cases {
		if got := PaymentFailureStatus(tc.attempts); got != tc.want {
			t.Errorf("PaymentFailureStatus(%d) = %q, want %q", tc.attempts, got, tc.want)
		}
	}
}

func TestEpochToTime_ZeroIsNil(t *testing.T) {
	if epochToTime(0) != nil {
		t.Error("epochToTime(0) should be nil")
	}
	got := epochToTime(1767225600)
	if got == nil || got.Location() != time.UTC {
		t.Errorf("epochToTime should return UTC time, got %v", got)
	}
}
