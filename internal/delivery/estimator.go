// Package delivery quotes the shipping fee for an address and a basket.
//
// Quotes race: the basket or the address may change while a request is in
// flight. Each request takes a generation number when it is issued, and only
// the response of the latest issued request is applied.
package delivery

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/metrics"
)

const calculatePath = "/api/delivery/calculate"

var ErrStale = errors.New("delivery quote superseded by newer inputs")

type Quote struct {
	AddressID   int64           `json:"address_id"`
	Fingerprint uint64          `json:"fingerprint,string"`
	Fee         decimal.Decimal `json:"fee"`
}

type quoteItem struct {
	FruitID  int64   `json:"fruit_id"`
	Weight   float64 `json:"weight"`
	Quantity float64 `json:"quantity"`
}

type quoteRequest struct {
	AddressID int64       `json:"address_id"`
	Items     []quoteItem `json:"items"`
}

type quoteResponse struct {
	DeliveryFee *decimal.Decimal `json:"delivery_fee"`
}

type Estimator struct {
	client    *api.Client
	threshold decimal.Decimal
	logger    *zap.Logger

	mu      sync.Mutex
	gen     uint64
	latest  uint64
	applied *Quote
}

// ticket is a request issued at generation gen for the inputs hashed to fp.
type ticket struct {
	gen uint64
	fp  uint64
}

type Option func(*Estimator)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

// WithFreeShippingThreshold makes baskets totalling at least threshold ship
// free without asking the service. Zero disables it.
func WithFreeShippingThreshold(threshold decimal.Decimal) Option {
	return func(e *Estimator) {
		e.threshold = threshold
	}
}

func NewEstimator(client *api.Client, options ...Option) *Estimator {
	e := &Estimator{
		client: client,
		logger: zap.NewNop(),
	}

	for _, opt := range options {
		opt(e)
	}

	return e
}

// Fingerprint identifies an (address, basket) pair regardless of basket
// order.
func Fingerprint(addressID int64, entries []cart.Entry) uint64 {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b cart.Entry) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	d := xxhash.New()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(addressID))
	d.Write(buf)
	for _, e := range sorted {
		binary.BigEndian.PutUint64(buf, uint64(e.ProductID))
		d.Write(buf)
		d.WriteString(e.Quantity.String())
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// Quote returns the fee for the pair. An unset address or an empty basket
// costs nothing and sends nothing. If newer inputs were requested while this
// one was in flight the result is dropped and ErrStale returned.
func (e *Estimator) Quote(ctx context.Context, addressID int64, entries []cart.Entry) (Quote, error) {
	return e.quote(ctx, e.issue(addressID, entries), addressID, entries)
}

// Refire requests a quote in the background, for callers reacting to a
// change of address or basket. The request is ordered by the call, not by
// when the goroutine runs.
func (e *Estimator) Refire(addressID int64, entries []cart.Entry) {
	t := e.issue(addressID, entries)
	entries = slices.Clone(entries)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if _, err := e.quote(ctx, t, addressID, entries); err != nil && !errors.Is(err, ErrStale) {
			e.logger.Warn("background delivery quote failed", zap.Int64("address_id", addressID), zap.Error(err))
		}
	}()
}

func (e *Estimator) issue(addressID int64, entries []cart.Entry) ticket {
	fp := Fingerprint(addressID, entries)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	e.latest = fp
	return ticket{gen: e.gen, fp: fp}
}

func (e *Estimator) quote(ctx context.Context, t ticket, addressID int64, entries []cart.Entry) (Quote, error) {
	q := Quote{AddressID: addressID, Fingerprint: t.fp, Fee: decimal.Zero}

	if addressID == 0 || len(entries) == 0 {
		return e.apply(t, q)
	}
	if e.threshold.IsPositive() && cart.Total(entries).GreaterThanOrEqual(e.threshold) {
		e.logger.Debug("basket qualifies for free shipping", zap.Int64("address_id", addressID))
		return e.apply(t, q)
	}

	req := quoteRequest{AddressID: addressID, Items: make([]quoteItem, 0, len(entries))}
	for _, entry := range entries {
		amount := entry.Quantity.InexactFloat64()
		req.Items = append(req.Items, quoteItem{
			FruitID:  entry.ProductID,
			Weight:   amount,
			Quantity: amount,
		})
	}

	var resp quoteResponse
	if err := e.client.PostJSON(ctx, calculatePath, req, &resp); err != nil {
		return Quote{}, fmt.Errorf("failed to quote delivery: %w", err)
	}
	if resp.DeliveryFee == nil {
		return Quote{}, fmt.Errorf("failed to quote delivery: response has no delivery_fee")
	}

	q.Fee = *resp.DeliveryFee
	return e.apply(t, q)
}

// Current is the applied quote, as long as no newer inputs have been
// requested since.
func (e *Estimator) Current() (Quote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied == nil || e.applied.Fingerprint != e.latest {
		return Quote{}, false
	}
	return *e.applied, true
}

// CurrentFor is the applied quote if it was computed for exactly this pair.
func (e *Estimator) CurrentFor(addressID int64, entries []cart.Entry) (Quote, bool) {
	q, ok := e.Current()
	if !ok || q.Fingerprint != Fingerprint(addressID, entries) {
		return Quote{}, false
	}
	return q, true
}

func (e *Estimator) apply(t ticket, q Quote) (Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.gen != e.gen {
		e.logger.Debug("dropping stale delivery quote", zap.Int64("address_id", q.AddressID))
		metrics.StaleResponse("delivery")
		return Quote{}, ErrStale
	}

	e.applied = &q
	return q, nil
}
