package service

import (
	"errors"
	"fmt"
)

// 错误分类哨兵，供 errors.Is 判断
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("resource not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrNegativeStock          = errors.New("stock would become negative")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrUnauthorized           = errors.New("invalid credentials")
	ErrAccountDisabled        = errors.New("account disabled")
	ErrEmailTaken             = errors.New("email already registered")
)

// ValidationError 输入校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is 归类为 ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError 资源不存在
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// Is 归类为 ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError 库存不足，Available 为校验时的可用库存
type InsufficientStockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is 归类为 ErrInsufficientStock
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NegativeStockError 调整后库存为负
type NegativeStockError struct {
	ProductID uint
	Current   int
	Delta     int
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("adjusting product %d by %d would make stock negative (current %d)",
		e.ProductID, e.Delta, e.Current)
}

// Is 归类为 ErrNegativeStock
func (e *NegativeStockError) Is(target error) bool {
	return target == ErrNegativeStock
}

// NextStepTarget 自动推进请求的目标占位，订单已无下一步时出现在 To 中
const NextStepTarget = "next"

// InvalidStateTransitionError 非法状态迁移，From 为订单实际状态
// To 为 NextStepTarget 表示该状态没有可自动推进的下一步
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	if e.To == "" || e.To == NextStepTarget {
		return fmt.Sprintf("order in status %s has no next step", e.From)
	}
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Is 归类为 ErrInvalidStateTransition
func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// ConcurrencyConflictError 冲突重试耗尽
type ConcurrencyConflictError struct {
	Attempts int
	Err      error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict after %d attempts: %v", e.Attempts, e.Err)
}

// Is 归类为 ErrConcurrencyConflict
func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Err
}
