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

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows for testing Query results.
type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *bool:
			*v = row[i].(bool)
		case *time.Time:
			*v = row[i].(time.Time)
		}
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// --- FeedbackRepo Tests ---

func TestFeedbackRepo_ListUnsent_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewFeedbackRepo(db, nil)

	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"fb_1", "a@example.com", "Alice", "bug", "charts broken", false, created},
		{"fb_2", "b@example.com", "", "idea", "add lightning lessons", false, created.Add(time.Hour)},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	out, err := repo.ListUnsent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "fb_1", out[0].ID)
	assert.Equal(t, "a@example.com", out[0].Email)
	assert.Equal(t, "bug", out[0].Category)
	assert.False(t, out[0].EmailSent)
	assert.Equal(t, "fb_2", out[1].ID)

	// Limit is passed through as the only bind parameter.
	callArgs := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, 10, callArgs[0])
}

func TestFeedbackRepo_ListUnsent_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewFeedbackRepo(db, nil)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(nil), nil)

	out, err := repo.ListUnsent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFeedbackRepo_ListUnsent_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewFeedbackRepo(db, nil)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListUnsent(context.Background(), 10)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestFeedbackRepo_MarkEmailSent_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewFeedbackRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkEmailSent(context.Background(), "fb_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestFeedbackRepo_MarkEmailSent_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewFeedbackRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.MarkEmailSent(context.Background(), "fb_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
