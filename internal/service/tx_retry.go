package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopledger/internal/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	defaultMaxConflictRetries = 3
	conflictBackoffStep       = 15 * time.Millisecond
)

// runInTx 在事务中执行 fn，遇到可重试冲突时整体重试，耗尽后返回 ConcurrencyConflictError
func runInTx(ctx context.Context, db *gorm.DB, maxRetries int, fn func(tx *gorm.DB) error) error {
	return runInTxWithRetryable(ctx, db, maxRetries, isRetryableConflict, fn)
}

func runInTxWithRetryable(ctx context.Context, db *gorm.DB, maxRetries int, retryable func(error) bool, fn func(tx *gorm.DB) error) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxConflictRetries
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		logger.Warnw("tx_conflict_retry",
			"attempt", attempt,
			"max_attempts", maxRetries,
			"error", err,
		)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictBackoffStep):
		}
	}
	return &ConcurrencyConflictError{Attempts: maxRetries, Err: lastErr}
}

// isRetryableConflict 判断是否为序列化失败、死锁或锁等待超时
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "55P03"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
