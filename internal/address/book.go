package address

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"storefront/internal/api"
	"storefront/internal/apperr"
)

const addressesPath = "/api/addresses"

// SavedAddress is an address stored by the storefront service for the
// credential holder.
type SavedAddress struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id,omitempty"`
	Selection
	IsDefault bool `json:"is_default,omitempty"`
}

// UnmarshalJSON accepts coordinates as numbers or numeric strings, since the
// service serializes decimal columns as text.
func (a *SavedAddress) UnmarshalJSON(data []byte) error {
	type plain SavedAddress
	var wire struct {
		plain
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	lat, err := parseDegrees(wire.Latitude)
	if err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	lng, err := parseDegrees(wire.Longitude)
	if err != nil {
		return fmt.Errorf("longitude: %w", err)
	}

	*a = SavedAddress(wire.plain)
	a.Latitude = lat
	a.Longitude = lng
	return nil
}

func parseDegrees(raw json.RawMessage) (*float64, error) {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Book is the user's address list and the one chosen for delivery. Every
// call goes through the client it was built with, which should be the
// session guard's.
type Book struct {
	client *api.Client

	mu        sync.Mutex
	addresses []SavedAddress
	selected  int64

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func(SavedAddress)
}

func NewBook(client *api.Client) *Book {
	return &Book{
		client:    client,
		observers: map[int]func(SavedAddress){},
	}
}

// Subscribe registers fn to receive the selected address whenever the
// selection changes. A cleared selection is reported as the zero value.
func (b *Book) Subscribe(fn func(SavedAddress)) func() {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()

	id := b.nextObs
	b.nextObs++
	b.observers[id] = fn

	return func() {
		b.obsMu.Lock()
		defer b.obsMu.Unlock()
		delete(b.observers, id)
	}
}

func (b *Book) notify(selected SavedAddress) {
	b.obsMu.Lock()
	fns := make([]func(SavedAddress), 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.obsMu.Unlock()

	for _, fn := range fns {
		fn(selected)
	}
}

func (b *Book) List(ctx context.Context) ([]SavedAddress, error) {
	var raw json.RawMessage
	if err := b.client.GetJSON(ctx, addressesPath, &raw); err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}

	addresses, err := decodeAddresses(raw)
	if err != nil {
		return nil, apperr.Unavailable("list addresses", err)
	}

	b.mu.Lock()
	b.addresses = addresses
	cleared := b.selected != 0 && !slices.ContainsFunc(addresses, func(a SavedAddress) bool { return a.ID == b.selected })
	if cleared {
		b.selected = 0
	}
	b.mu.Unlock()

	if cleared {
		b.notify(SavedAddress{})
	}
	return slices.Clone(addresses), nil
}

// Create stores sel on the service and selects the new address.
func (b *Book) Create(ctx context.Context, sel Selection) (SavedAddress, error) {
	var body struct {
		Address *SavedAddress `json:"address"`
	}
	if err := b.client.PostJSON(ctx, addressesPath, sel, &body); err != nil {
		return SavedAddress{}, fmt.Errorf("failed to create address: %w", err)
	}
	if body.Address == nil || body.Address.ID == 0 {
		return SavedAddress{}, apperr.Unavailable("create address", fmt.Errorf("response has no address id"))
	}

	created := *body.Address
	b.mu.Lock()
	b.addresses = append(b.addresses, created)
	b.selected = created.ID
	b.mu.Unlock()

	b.notify(created)
	return created, nil
}

// Select chooses a listed address for delivery.
func (b *Book) Select(id int64) error {
	b.mu.Lock()
	i := slices.IndexFunc(b.addresses, func(a SavedAddress) bool { return a.ID == id })
	if i < 0 {
		b.mu.Unlock()
		return apperr.Fields("unknown address", map[string]string{"address_id": strconv.FormatInt(id, 10)})
	}
	b.selected = id
	selected := b.addresses[i]
	b.mu.Unlock()

	b.notify(selected)
	return nil
}

func (b *Book) Selected() (SavedAddress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range b.addresses {
		if a.ID == b.selected {
			return a, true
		}
	}
	return SavedAddress{}, false
}

func decodeAddresses(raw json.RawMessage) ([]SavedAddress, error) {
	var wrapped struct {
		Addresses []SavedAddress `json:"addresses"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Addresses != nil {
		return wrapped.Addresses, nil
	}

	var list []SavedAddress
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode addresses: %w", err)
	}
	if list == nil {
		list = []SavedAddress{}
	}
	return list, nil
}
