// Package cart is the basket of selected goods. It is held in memory and
// written through to the persisted store under the "cart" key.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/storage"
)

const StorageKey = "cart"

type Store struct {
	repo   storage.Repository
	logger *zap.Logger

	// writeMu orders this handle's writes. mu guards entries and must not be
	// held across repo.Set: Memory runs other handles' subscribers inside it.
	writeMu   sync.Mutex
	mu        sync.Mutex
	entries   []Entry
	refreshes uint64

	obsMu     sync.Mutex
	nextObs   int
	observers map[int]func([]Entry)

	unsubscribe func()
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New loads the basket from repo. A missing or unreadable basket starts
// empty. The store reloads itself when another handle writes the basket.
func New(ctx context.Context, repo storage.Repository, options ...Option) *Store {
	s := &Store{
		repo:      repo,
		logger:    zap.NewNop(),
		observers: map[int]func([]Entry){},
	}

	for _, opt := range options {
		opt(s)
	}

	s.entries = s.load(ctx)
	s.unsubscribe = repo.Subscribe(StorageKey, func(storage.Change) {
		s.Refresh(context.Background())
	})

	return s
}

// Close stops following external changes.
func (s *Store) Close() {
	s.unsubscribe()
}

// Subscribe registers fn to receive the basket after every change.
func (s *Store) Subscribe(fn func([]Entry)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

// Refresh rereads the persisted basket.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.entries = s.load(ctx)
	s.refreshes++
	snapshot := slices.Clone(s.entries)
	s.mu.Unlock()

	s.notify(snapshot)
}

// Add merges amount into the entry for product, or appends a new entry with
// the product snapshot. Piece amounts are rounded down; a non-positive
// amount changes nothing.
func (s *Store) Add(ctx context.Context, product Product, amount decimal.Decimal) error {
	unit := product.Unit.Normalize()
	if unit == Piece {
		amount = amount.Floor()
	}
	if !amount.IsPositive() {
		return nil
	}

	return s.mutate(ctx, func(entries []Entry) []Entry {
		if i := index(entries, product.ID); i >= 0 {
			entries[i].Quantity = entries[i].Quantity.Add(amount)
			return entries
		}
		return append(entries, Entry{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Image:     product.Image,
			Stock:     product.Stock,
			Unit:      unit,
			Quantity:  amount,
		})
	})
}

// SetQuantity replaces the quantity of an entry. An amount that is not
// positive, after piece rounding, removes the entry.
func (s *Store) SetQuantity(ctx context.Context, productID int64, amount decimal.Decimal) error {
	return s.mutate(ctx, func(entries []Entry) []Entry {
		i := index(entries, productID)
		if i < 0 {
			return entries
		}
		if entries[i].Unit == Piece {
			amount = amount.Floor()
		}
		if !amount.IsPositive() {
			return slices.Delete(entries, i, i+1)
		}
		entries[i].Quantity = amount
		return entries
	})
}

func (s *Store) Remove(ctx context.Context, productID int64) error {
	return s.mutate(ctx, func(entries []Entry) []Entry {
		if i := index(entries, productID); i >= 0 {
			return slices.Delete(entries, i, i+1)
		}
		return entries
	})
}

// Clear empties the basket. Only a confirmed order should call it.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func([]Entry) []Entry {
		return []Entry{}
	})
}

func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.entries)
}

// ItemCount is the number of distinct entries, not the summed quantity.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func Total(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.LineTotal())
	}
	return total
}

func (s *Store) mutate(ctx context.Context, fn func([]Entry) []Entry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.entries
	entries := fn(slices.Clone(prev))
	data, err := json.Marshal(entries)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to encode basket: %w", err)
	}
	s.entries = entries
	seen := s.refreshes
	s.mu.Unlock()

	if err := s.repo.Set(ctx, StorageKey, data); err != nil {
		s.mu.Lock()
		if s.refreshes == seen {
			s.entries = prev
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to persist basket: %w", err)
	}

	s.mu.Lock()
	if s.refreshes != seen {
		// Another handle wrote while this write was in flight. Keep whichever
		// value landed last.
		s.entries = s.load(ctx)
	}
	snapshot := slices.Clone(s.entries)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

func (s *Store) notify(entries []Entry) {
	s.obsMu.Lock()
	fns := make([]func([]Entry), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(slices.Clone(entries))
	}
}

func (s *Store) load(ctx context.Context) []Entry {
	data, ok, err := s.repo.Get(ctx, StorageKey)
	if err != nil {
		s.logger.Warn("failed to read basket, starting empty", zap.Error(err))
		return []Entry{}
	}
	if !ok || len(data) == 0 {
		return []Entry{}
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("discarding unreadable basket", zap.Error(err))
		return []Entry{}
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		e.Unit = e.Unit.Normalize()
		if e.Unit == Piece {
			e.Quantity = e.Quantity.Floor()
		}
		if !e.Quantity.IsPositive() {
			continue
		}
		if i := index(entries, e.ProductID); i >= 0 {
			entries[i].Quantity = entries[i].Quantity.Add(e.Quantity)
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func index(entries []Entry, productID int64) int {
	return slices.IndexFunc(entries, func(e Entry) bool {
		return e.ProductID == productID
	})
}
