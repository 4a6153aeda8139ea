// Package pricing computes line totals. Goods sold by piece are priced
// locally. Goods sold by weight ask the storefront service, which may apply
// weight tiers, and fall back to unit price times weight when it cannot
// answer. The fallback is intentional: a price is always shown.
package pricing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/metrics"
)

type Source string

const (
	SourceLocal    Source = "local"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

type Line struct {
	Total  decimal.Decimal `json:"total"`
	Source Source          `json:"source"`
}

// Strategy is the two tier computation used for goods sold by weight.
type Strategy interface {
	ComputeRemote(ctx context.Context, product cart.Product, weight decimal.Decimal) (decimal.Decimal, error)
	ComputeLocalFallback(product cart.Product, weight decimal.Decimal) decimal.Decimal
}

type Calculator struct {
	strategy Strategy
	logger   *zap.Logger
}

type Option func(*Calculator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Calculator) {
		c.logger = logger
	}
}

func NewCalculator(strategy Strategy, options ...Option) *Calculator {
	c := &Calculator{
		strategy: strategy,
		logger:   zap.NewNop(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// LineTotal never fails. Every call computes afresh; nothing is cached
// between (product, amount) pairs.
func (c *Calculator) LineTotal(ctx context.Context, product cart.Product, amount decimal.Decimal) Line {
	if product.Unit.Normalize() == cart.Piece {
		return Line{Total: product.Price.Mul(amount), Source: SourceLocal}
	}

	total, err := c.strategy.ComputeRemote(ctx, product, amount)
	if err == nil {
		return Line{Total: total, Source: SourceRemote}
	}

	reason := fallbackReason(err)
	c.logger.Debug("pricing endpoint failed, using local price",
		zap.Int64("product_id", product.ID),
		zap.String("weight", amount.String()),
		zap.String("reason", reason),
		zap.Error(err),
	)
	metrics.PriceFallback(reason)

	return Line{Total: c.strategy.ComputeLocalFallback(product, amount), Source: SourceFallback}
}

func fallbackReason(err error) string {
	var remote *apperr.RemoteError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.As(err, &remote):
		return "status"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}
