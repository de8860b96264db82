package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{newValidationError("qty", "must be positive"), ErrValidation},
		{&NotFoundError{Resource: "order", ID: 1}, ErrNotFound},
		{&InsufficientStockError{ProductID: 1, Requested: 2, Available: 1}, ErrInsufficientStock},
		{&NegativeStockError{ProductID: 1, Current: 1, Delta: -2}, ErrNegativeStock},
		{&InvalidStateTransitionError{From: "shipped", To: "cancelled"}, ErrInvalidStateTransition},
		{&ConcurrencyConflictError{Attempts: 3, Err: errors.New("deadlock")}, ErrConcurrencyConflict},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.sentinel)
		for _, other := range cases {
			if other.sentinel != tc.sentinel {
				assert.NotErrorIs(t, tc.err, other.sentinel)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "qty: must be positive", newValidationError("qty", "must be positive").Error())
	assert.Equal(t, "cannot transition order from shipped to cancelled",
		(&InvalidStateTransitionError{From: "shipped", To: "cancelled"}).Error())
	assert.Equal(t, "order in status delivered has no next step",
		(&InvalidStateTransitionError{From: "delivered"}).Error())
	assert.Equal(t, "insufficient stock for product 4: requested 5, available 3",
		(&InsufficientStockError{ProductID: 4, Requested: 5, Available: 3}).Error())
}

func TestRetryClassification(t *testing.T) {
	assert.True(t, isRetryableConflict(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryableConflict(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetryableConflict(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isRetryableConflict(&mysql.MySQLError{Number: 1213}))
	assert.True(t, isRetryableConflict(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isRetryableConflict(nil))
	assert.False(t, isRetryableConflict(ErrInsufficientStock))

	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: orders.order_no")))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestRunInTxRetriesThenReportsConflict(t *testing.T) {
	db := openServiceTestDB(t)
	attempts := 0
	err := runInTx(context.Background(), db, 2, func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})

	var conflict *ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, conflict.Attempts)
}

func TestRunInTxRecoversAfterTransientConflict(t *testing.T) {
	db := openServiceTestDB(t)
	attempts := 0
	err := runInTxWithRetryable(context.Background(), db, 3, isUniqueViolation, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return gorm.ErrDuplicatedKey
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRunInTxDoesNotRetryDomainErrors(t *testing.T) {
	db := openServiceTestDB(t)
	attempts := 0
	err := runInTx(context.Background(), db, 3, func(tx *gorm.DB) error {
		attempts++
		return &InsufficientStockError{ProductID: 1, Requested: 1}
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 1, attempts)
}
