package cart_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/storage"
)

var (
	mango = cart.Product{ID: 1, Name: "Mango", Price: decimal.NewFromInt(50), Unit: cart.Weight, Stock: decimal.NewFromInt(20)}
	melon = cart.Product{ID: 2, Name: "Melon", Price: decimal.NewFromInt(120), Unit: cart.Piece, Stock: decimal.NewFromInt(5)}
	lime  = cart.Product{ID: 3, Name: "Lime", Price: decimal.RequireFromString("7.5"), Unit: cart.Piece}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newStore(t *testing.T) (*cart.Store, *storage.Memory) {
	t.Helper()
	repo := storage.NewMemory()
	s := cart.New(context.Background(), repo)
	t.Cleanup(s.Close)
	return s, repo
}

func TestStoreAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("merge sums quantity", func(t *testing.T) {
		for _, amounts := range [][2]string{{"1", "1"}, {"0.5", "1.5"}, {"2.5", "0.5"}, {"10", "0.5"}} {
			s, _ := newStore(t)
			require.NoError(t, s.Add(ctx, mango, d(amounts[0])))
			require.NoError(t, s.Add(ctx, mango, d(amounts[1])))

			entries := s.Entries()
			require.Len(t, entries, 1)
			assert.True(t, d(amounts[0]).Add(d(amounts[1])).Equal(entries[0].Quantity), amounts)
		}
	})

	t.Run("new entry takes product snapshot", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, melon, d("2")))

		entries := s.Entries()
		require.Len(t, entries, 1)
		e := entries[0]
		assert.Equal(t, int64(2), e.ProductID)
		assert.Equal(t, "Melon", e.Name)
		assert.Equal(t, cart.Piece, e.Unit)
		assert.True(t, d("120").Equal(e.UnitPrice))
		assert.True(t, d("5").Equal(e.Stock))
		assert.True(t, d("2").Equal(e.Quantity))
	})

	t.Run("insertion order is kept", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, melon, d("1")))
		require.NoError(t, s.Add(ctx, mango, d("1")))
		require.NoError(t, s.Add(ctx, melon, d("1")))

		entries := s.Entries()
		assert.Equal(t, int64(2), entries[0].ProductID)
		assert.Equal(t, int64(1), entries[1].ProductID)
	})

	t.Run("piece amount is rounded down", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, melon, d("2.7")))
		assert.True(t, d("2").Equal(s.Entries()[0].Quantity))
	})

	t.Run("non-positive amount is ignored", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, mango, d("0")))
		require.NoError(t, s.Add(ctx, melon, d("0.4")))
		assert.Empty(t, s.Entries())
	})

	t.Run("unknown unit counts as weight", func(t *testing.T) {
		s, _ := newStore(t)
		p := mango
		p.Unit = ""
		require.NoError(t, s.Add(ctx, p, d("1.5")))
		assert.Equal(t, cart.Weight, s.Entries()[0].Unit)
	})
}

func TestStoreSetQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("weight stores the rational as given", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, mango, d("1")))
		require.NoError(t, s.SetQuantity(ctx, mango.ID, d("2.5")))
		assert.True(t, d("2.5").Equal(s.Entries()[0].Quantity))
	})

	t.Run("non-positive removes", func(t *testing.T) {
		for _, amount := range []string{"0", "-0.5", "-3"} {
			s, _ := newStore(t)
			require.NoError(t, s.Add(ctx, mango, d("1")))
			require.NoError(t, s.SetQuantity(ctx, mango.ID, d(amount)))
			assert.Empty(t, s.Entries(), amount)
		}
	})

	t.Run("piece quantity is always whole", func(t *testing.T) {
		for _, amount := range []string{"1.2", "3.99", "7"} {
			s, _ := newStore(t)
			require.NoError(t, s.Add(ctx, melon, d("1")))
			require.NoError(t, s.SetQuantity(ctx, melon.ID, d(amount)))

			q := s.Entries()[0].Quantity
			assert.True(t, q.Equal(q.Floor()), amount)
			assert.True(t, q.IsPositive(), amount)
		}
	})

	t.Run("piece fraction below one removes", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, melon, d("1")))
		require.NoError(t, s.SetQuantity(ctx, melon.ID, d("0.9")))
		assert.Empty(t, s.Entries())
	})

	t.Run("unknown product is a no-op", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.SetQuantity(ctx, 99, d("1")))
		assert.Empty(t, s.Entries())
	})
}

func TestStoreTotals(t *testing.T) {
	ctx := context.Background()

	t.Run("total is independent of insertion order", func(t *testing.T) {
		a, _ := newStore(t)
		require.NoError(t, a.Add(ctx, mango, d("1.5")))
		require.NoError(t, a.Add(ctx, melon, d("2")))
		require.NoError(t, a.Add(ctx, lime, d("3")))

		b, _ := newStore(t)
		require.NoError(t, b.Add(ctx, lime, d("3")))
		require.NoError(t, b.Add(ctx, melon, d("2")))
		require.NoError(t, b.Add(ctx, mango, d("1.5")))

		// 75 + 240 + 22.5
		assert.True(t, d("337.5").Equal(a.Total()))
		assert.True(t, a.Total().Equal(b.Total()))
	})

	t.Run("item count is distinct entries", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.Add(ctx, mango, d("3")))
		require.NoError(t, s.Add(ctx, mango, d("1")))
		require.NoError(t, s.Add(ctx, melon, d("4")))
		assert.Equal(t, 2, s.ItemCount())
	})

	t.Run("remove and clear", func(t *testing.T) {
		s, repo := newStore(t)
		require.NoError(t, s.Add(ctx, mango, d("1")))
		require.NoError(t, s.Add(ctx, melon, d("1")))

		require.NoError(t, s.Remove(ctx, mango.ID))
		require.NoError(t, s.Remove(ctx, 99))
		assert.Equal(t, 1, s.ItemCount())

		require.NoError(t, s.Clear(ctx))
		assert.Equal(t, 0, s.ItemCount())
		assert.True(t, decimal.Zero.Equal(s.Total()))

		raw, ok, _ := repo.Get(ctx, cart.StorageKey)
		assert.True(t, ok)
		assert.Equal(t, "[]", string(raw))
	})
}

func TestStorePersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("basket survives reload", func(t *testing.T) {
		repo := storage.NewMemory()
		s := cart.New(ctx, repo)
		require.NoError(t, s.Add(ctx, mango, d("1.5")))
		s.Close()

		reloaded := cart.New(ctx, repo)
		defer reloaded.Close()
		entries := reloaded.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "Mango", entries[0].Name)
		assert.True(t, d("1.5").Equal(entries[0].Quantity))
		assert.True(t, d("75").Equal(reloaded.Total()))
	})

	t.Run("corrupt basket loads empty", func(t *testing.T) {
		repo := storage.NewMemory()
		require.NoError(t, repo.Set(ctx, cart.StorageKey, []byte("{not json")))

		s := cart.New(ctx, repo)
		defer s.Close()
		assert.Empty(t, s.Entries())
	})

	t.Run("numeric json from older clients loads", func(t *testing.T) {
		repo := storage.NewMemory()
		require.NoError(t, repo.Set(ctx, cart.StorageKey, []byte(
			`[{"id":1,"name":"Mango","price":50,"unit":"kg","quantity":1.5},`+
				`{"id":2,"name":"Melon","price":120,"unit":"piece","quantity":2.5},`+
				`{"id":3,"name":"Bad","price":1,"unit":"kg","quantity":0}]`)))

		s := cart.New(ctx, repo)
		defer s.Close()

		entries := s.Entries()
		require.Len(t, entries, 2)
		assert.True(t, d("1.5").Equal(entries[0].Quantity))
		assert.True(t, d("2").Equal(entries[1].Quantity))
	})

	t.Run("change from another tab reaches observers", func(t *testing.T) {
		tab1 := storage.NewMemory()
		tab2 := tab1.Attach()

		badge := cart.New(ctx, tab1)
		defer badge.Close()
		editor := cart.New(ctx, tab2)
		defer editor.Close()

		var counts []int
		badge.Subscribe(func(entries []cart.Entry) {
			counts = append(counts, len(entries))
		})

		require.NoError(t, editor.Add(ctx, mango, d("1")))
		require.NoError(t, editor.Add(ctx, melon, d("1")))

		assert.Equal(t, []int{1, 2}, counts)
		assert.Equal(t, 2, badge.ItemCount())
	})

	t.Run("two tabs writing at once stay live and converge", func(t *testing.T) {
		tab1 := storage.NewMemory()
		tab2 := tab1.Attach()

		s1 := cart.New(ctx, tab1)
		defer s1.Close()
		s2 := cart.New(ctx, tab2)
		defer s2.Close()

		var wg sync.WaitGroup
		for _, s := range []*cart.Store{s1, s2} {
			wg.Add(1)
			go func(s *cart.Store) {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					s.Add(ctx, mango, d("1"))
					s.Add(ctx, melon, d("1"))
				}
			}(s)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("concurrent writes from two tabs did not finish")
		}

		persisted := cart.New(ctx, tab1.Attach())
		defer persisted.Close()
		want := persisted.Entries()
		require.NotEmpty(t, want)

		for _, s := range []*cart.Store{s1, s2} {
			got := s.Entries()
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].ProductID, got[i].ProductID)
				assert.True(t, want[i].Quantity.Equal(got[i].Quantity))
			}
		}
	})

	t.Run("own mutations notify observers", func(t *testing.T) {
		s, _ := newStore(t)
		calls := 0
		unsubscribe := s.Subscribe(func([]cart.Entry) { calls++ })

		require.NoError(t, s.Add(ctx, mango, d("1")))
		unsubscribe()
		require.NoError(t, s.Add(ctx, mango, d("1")))

		assert.Equal(t, 1, calls)
	})
}

func TestValidateAmount(t *testing.T) {
	step := d("0.5")

	tests := []struct {
		name  string
		kind  cart.UnitKind
		value string
		ok    bool
	}{
		{"whole pieces", cart.Piece, "3", true},
		{"fractional pieces", cart.Piece, "1.5", false},
		{"zero pieces", cart.Piece, "0", false},
		{"weight on step", cart.Weight, "2.5", true},
		{"weight off step", cart.Weight, "0.3", false},
		{"negative weight", cart.Weight, "-0.5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cart.ValidateAmount(tt.kind, d(tt.value), step)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}
}
