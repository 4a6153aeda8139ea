// Package checkout submits the basket as an order.
//
// A checkout is Idle until submitted, Submitting while the one order request
// is in flight, then Confirmed or Failed. Only a confirmed order clears the
// basket; a failed one leaves it intact so the user can retry.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/address"
	"storefront/internal/api"
	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/delivery"
	"storefront/internal/metrics"
	"storefront/internal/session"
)

const (
	ordersPath = "/api/orders"

	GenericFailure = "Failed to create order. Please try again."
)

type State string

const (
	Idle       State = "idle"
	Submitting State = "submitting"
	Confirmed  State = "confirmed"
	Failed     State = "failed"
)

// ErrInProgress is returned by a submit that arrives while another one is
// still in flight. Nothing is sent.
var ErrInProgress = errors.New("checkout already in progress")

type Basket interface {
	Entries() []cart.Entry
	Clear(ctx context.Context) error
}

type AddressBook interface {
	Selected() (address.SavedAddress, bool)
}

type Session interface {
	Current(ctx context.Context) (session.Credential, bool)
}

type Quotes interface {
	CurrentFor(addressID int64, entries []cart.Entry) (delivery.Quote, bool)
}

type Request struct {
	Notes string `json:"notes"`
}

type Confirmation struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DeliveryQuote *delivery.Quote `json:"delivery_quote,omitempty"`
}

type Status struct {
	State        State         `json:"state"`
	Message      string        `json:"message,omitempty"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
}

type orderItem struct {
	FruitID  int64   `json:"fruit_id"`
	Weight   float64 `json:"weight"`
	Quantity float64 `json:"quantity"`
}

type orderRequest struct {
	Items              []orderItem `json:"items"`
	AddressID          int64       `json:"address_id"`
	ShippingAddress    string      `json:"shipping_address"`
	ShippingCity       string      `json:"shipping_city"`
	ShippingPostalCode string      `json:"shipping_postal_code"`
	ShippingCountry    string      `json:"shipping_country"`
	PaymentMethod      string      `json:"payment_method"`
	Notes              *string     `json:"notes"`
}

type orderResponse struct {
	Order *struct {
		ID          int64           `json:"id"`
		OrderNumber string          `json:"order_number"`
		TotalAmount decimal.Decimal `json:"total_amount"`
	} `json:"order"`
}

type Orchestrator struct {
	basket  Basket
	book    AddressBook
	session Session
	quotes  Quotes
	client  *api.Client
	logger  *zap.Logger

	country       string
	paymentMethod string

	mu     sync.Mutex
	status Status
}

type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithCountry(country string) Option {
	return func(o *Orchestrator) {
		o.country = country
	}
}

func WithPaymentMethod(method string) Option {
	return func(o *Orchestrator) {
		o.paymentMethod = method
	}
}

// WithQuotes attaches the delivery estimator whose current quote is
// reported with a confirmed order.
func WithQuotes(quotes Quotes) Option {
	return func(o *Orchestrator) {
		o.quotes = quotes
	}
}

// NewOrchestrator sends orders through client, which must authorize
// requests with the session credential.
func NewOrchestrator(basket Basket, book AddressBook, sess Session, client *api.Client, options ...Option) *Orchestrator {
	o := &Orchestrator{
		basket:        basket,
		book:          book,
		session:       sess,
		client:        client,
		logger:        zap.NewNop(),
		country:       "Thailand",
		paymentMethod: "Thai QR PromptPay",
		status:        Status{State: Idle},
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Submit places one order for the current basket and selected address.
// Failed preconditions leave the state as it was and send nothing.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Confirmation, error) {
	o.mu.Lock()
	if o.status.State == Submitting {
		o.mu.Unlock()
		return Confirmation{}, ErrInProgress
	}

	entries := o.basket.Entries()
	addr, err := o.preconditions(ctx, entries)
	if err != nil {
		o.mu.Unlock()
		return Confirmation{}, err
	}

	o.status = Status{State: Submitting}
	o.mu.Unlock()

	var quote *delivery.Quote
	if o.quotes != nil {
		if q, ok := o.quotes.CurrentFor(addr.ID, entries); ok {
			quote = &q
		}
	}

	var resp orderResponse
	err = o.client.PostJSON(ctx, ordersPath, o.payload(addr, entries, req), &resp)
	if err == nil && (resp.Order == nil || resp.Order.ID == 0) {
		err = apperr.Unavailable("create order", errors.New("response has no order id"))
	}
	if err != nil {
		return Confirmation{}, o.fail(err)
	}

	conf := Confirmation{
		OrderID:       resp.Order.ID,
		OrderNumber:   resp.Order.OrderNumber,
		TotalAmount:   resp.Order.TotalAmount,
		DeliveryQuote: quote,
	}

	if err := o.basket.Clear(ctx); err != nil {
		o.logger.Error("order placed but basket not cleared", zap.Int64("order_id", conf.OrderID), zap.Error(err))
	}

	o.mu.Lock()
	o.status = Status{State: Confirmed, Confirmation: &conf}
	o.mu.Unlock()

	o.logger.Info("order placed", zap.Int64("order_id", conf.OrderID), zap.String("order_number", conf.OrderNumber))
	metrics.CheckoutSubmitted("confirmed")
	return conf, nil
}

func (o *Orchestrator) preconditions(ctx context.Context, entries []cart.Entry) (address.SavedAddress, error) {
	if len(entries) == 0 {
		return address.SavedAddress{}, apperr.Fields("basket is empty", map[string]string{"items": "add something to the basket first"})
	}

	addr, ok := o.book.Selected()
	if !ok || addr.ID == 0 {
		return address.SavedAddress{}, apperr.Fields("no delivery address", map[string]string{"address_id": "select a saved address"})
	}

	if _, ok := o.session.Current(ctx); !ok {
		return address.SavedAddress{}, fmt.Errorf("%w: log in to place an order", apperr.ErrSessionExpired)
	}

	return addr, nil
}

func (o *Orchestrator) payload(addr address.SavedAddress, entries []cart.Entry, req Request) orderRequest {
	items := make([]orderItem, 0, len(entries))
	for _, e := range entries {
		amount := e.Quantity.InexactFloat64()
		items = append(items, orderItem{
			FruitID:  e.ProductID,
			Weight:   amount,
			Quantity: amount,
		})
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}

	return orderRequest{
		Items:              items,
		AddressID:          addr.ID,
		ShippingAddress:    addr.Label(),
		ShippingCity:       addr.Province,
		ShippingPostalCode: addr.PostalCode,
		ShippingCountry:    o.country,
		PaymentMethod:      o.paymentMethod,
		Notes:              notes,
	}
}

func (o *Orchestrator) fail(err error) error {
	msg := apperr.UserMessage(err, GenericFailure)

	o.mu.Lock()
	o.status = Status{State: Failed, Message: msg}
	o.mu.Unlock()

	o.logger.Warn("order submission failed", zap.Error(err))
	metrics.CheckoutSubmitted("failed")
	return fmt.Errorf("failed to place order: %w", err)
}
