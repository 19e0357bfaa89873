package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"satlearn/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- SubscriptionRepo Tests ---

func TestSubscriptionRepo_Upsert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	err := repo.Upsert(context.Background(), types.SubscriptionUpsert{
		UserID:               "user_1",
		Tier:                 types.TierPremium,
		Status:               types.SubStatusActive,
		StripeCustomerID:     "cus_123",
		StripeSubscriptionID: "sub_123",
		StripePriceID:        "price_123",
		StartDate:            &start,
		EndDate:              &end,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)

	// Upsert arguments are passed positionally; verify the identity columns.
	callArgs := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, "user_1", callArgs[0])
	assert.Equal(t, types.TierPremium, callArgs[1])
	assert.Equal(t, types.SubStatusActive, callArgs[2])
}

func TestSubscriptionRepo_Upsert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Upsert(context.Background(), types.SubscriptionUpsert{UserID: "user_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepo_GetByUserID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	now := time.Now().UTC()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "user_1"
				*dest[1].(*types.Tier) = types.TierPremium
				*dest[2].(*types.SubscriptionStatus) = types.SubStatusActive
				*dest[3].(*string) = "cus_123"
				*dest[4].(*string) = "sub_123"
				*dest[5].(*string) = "price_123"
				*dest[6].(**time.Time) = &now
				*dest[7].(**time.Time) = nil
				*dest[8].(*bool) = false
				*dest[9].(*time.Time) = now
				*dest[10].(*time.Time) = now
				return nil
			},
		})

	sub, err := repo.GetByUserID(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", sub.UserID)
	assert.Equal(t, types.TierPremium, sub.Tier)
	assert.Equal(t, "cus_123", sub.StripeCustomerID)
}

func TestSubscriptionRepo_GetByUserID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	sub, err := repo.GetByUserID(context.Background(), "user_missing")
	require.Error(t, err)
	assert.Nil(t, sub)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSubscriptionRepo_GetByUserID_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.GetByUserID(context.Background(), "user_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepo_InsertPlaceholder_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.InsertPlaceholder(context.Background(), "user_1", "cus_new")
	require.NoError(t, err)

	callArgs := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, "user_1", callArgs[0])
	assert.Equal(t, types.TierFree, callArgs[1])
	assert.Equal(t, types.SubStatusNone, callArgs[2])
	assert.Equal(t, "cus_new", callArgs[3])
}

func TestSubscriptionRepo_MarkCanceled_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkCanceled(context.Background(), "sub_123", time.Now().UTC())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_MarkCanceled_UnknownRowIsNoError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	// Deletion events for rows we never tracked are logged, not failed:
	// the provider will not retry a 500 into a better outcome.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkCanceled(context.Background(), "sub_unknown", time.Now().UTC())
	require.NoError(t, err)
}

func TestSubscriptionRepo_SetStatusBySubscriptionID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetStatusBySubscriptionID(context.Background(), "sub_123", types.SubStatusPastDue)
	require.NoError(t, err)

	callArgs := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, types.SubStatusPastDue, callArgs[0])
	assert.Equal(t, "sub_123", callArgs[1])
}

func TestSubscriptionRepo_SetCancelAtPeriodEnd_ScopedByUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetCancelAtPeriodEnd(context.Background(), "sub_123", "user_1")
	require.NoError(t, err)

	callArgs := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, types.SubStatusActiveUntilPeriodEnd, callArgs[0])
	assert.Equal(t, "sub_123", callArgs[1])
	assert.Equal(t, "user_1", callArgs[2])
}

func TestSubscriptionRepo_SetCancelAtPeriodEnd_WrongUserNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	// No row matches both the subscription id and the user id.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SetCancelAtPeriodEnd(context.Background(), "sub_123", "user_other")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}
