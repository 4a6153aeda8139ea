package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront/internal/api"
	"storefront/internal/cart"
)

const calculatePath = "/api/fruits/calculate-total-price"

var ErrMalformed = errors.New("price response has no totalPrice")

type priceRequest struct {
	FruitID int64   `json:"fruit_id"`
	Weight  float64 `json:"weight"`
}

type priceResponse struct {
	TotalPrice *decimal.Decimal `json:"totalPrice"`
}

// RemoteStrategy asks the storefront service for the price of a weight and
// computes unit price times weight when it cannot.
type RemoteStrategy struct {
	client  *api.Client
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
}

func NewRemoteStrategy(client *api.Client, logger *zap.Logger) *RemoteStrategy {
	return &RemoteStrategy{
		client:  client,
		breaker: api.NewBreaker[decimal.Decimal]("pricing", logger),
	}
}

func (s *RemoteStrategy) ComputeRemote(ctx context.Context, product cart.Product, weight decimal.Decimal) (decimal.Decimal, error) {
	return s.breaker.Execute(func() (decimal.Decimal, error) {
		var resp priceResponse
		req := priceRequest{
			FruitID: product.ID,
			Weight:  weight.InexactFloat64(),
		}
		if err := s.client.PostJSON(ctx, calculatePath, req, &resp); err != nil {
			return decimal.Zero, fmt.Errorf("failed to calculate price: %w", err)
		}
		if resp.TotalPrice == nil {
			return decimal.Zero, ErrMalformed
		}
		return *resp.TotalPrice, nil
	})
}

func (s *RemoteStrategy) ComputeLocalFallback(product cart.Product, weight decimal.Decimal) decimal.Decimal {
	return product.Price.Mul(weight)
}
