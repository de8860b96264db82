package service

import (
	"context"
	"strings"

	"github.com/shopledger/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentGateway 支付网关，资金处理不在本系统内
type PaymentGateway interface {
	CreateIntent(ctx context.Context, orderNo string, amount decimal.Decimal, currency string) (string, error)
	Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) (string, error)
}

// ManualGateway 线下/人工收款网关，只生成流水号
type ManualGateway struct{}

// CreateIntent 生成支付意图编号
func (ManualGateway) CreateIntent(_ context.Context, orderNo string, amount decimal.Decimal, currency string) (string, error) {
	ref := "pi_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	logger.Infow("payment_intent_created",
		"order_no", orderNo,
		"amount", amount.StringFixed(2),
		"currency", currency,
		"payment_ref", ref,
	)
	return ref, nil
}

// Refund 生成退款流水号
func (ManualGateway) Refund(_ context.Context, paymentRef string, amount decimal.Decimal) (string, error) {
	ref := "re_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	logger.Infow("payment_refund_created",
		"payment_ref", paymentRef,
		"amount", amount.StringFixed(2),
		"refund_ref", ref,
	)
	return ref, nil
}
