package service

import (
	"errors"
	"time"
)

const (
	orderNoPrefix             = "ORD"
	orderNoRandomDigits       = 6
	defaultOrderNoMaxAttempts = 5
	digitAlphabet             = "0123456789"
)

// errOrderNoExhausted 连续生成的订单号均已存在
var errOrderNoExhausted = errors.New("order number attempts exhausted")

// orderNumberGenerator 订单号生成：ORD + yyyymmddHHMMSS + 6 位随机数字
type orderNumberGenerator struct {
	maxAttempts int
	now         func() time.Time
	random      func() string
}

func newOrderNumberGenerator(maxAttempts int) *orderNumberGenerator {
	return &orderNumberGenerator{
		maxAttempts: positiveInt(maxAttempts, defaultOrderNoMaxAttempts),
		now:         time.Now,
		random:      func() string { return randomString(digitAlphabet, orderNoRandomDigits) },
	}
}

// Next 生成一个库中不存在的订单号，唯一索引仍是最终保障
func (g *orderNumberGenerator) Next(exists func(orderNo string) (bool, error)) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := orderNoPrefix + g.now().Format("20060102150405") + g.random()
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errOrderNoExhausted
}
