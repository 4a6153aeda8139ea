package checkout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"storefront/internal/address"
	"storefront/internal/api"
	"storefront/internal/session"
)

type stubBook struct {
	selected address.SavedAddress
	ok       bool
}

func (b *stubBook) Selected() (address.SavedAddress, bool) {
	return b.selected, b.ok
}

type stubSession struct {
	live bool
}

func (s *stubSession) Current(context.Context) (session.Credential, bool) {
	if !s.live {
		return session.Credential{}, false
	}
	return session.Credential{Token: "token", Expiry: time.Now().Add(time.Hour)}, true
}

type orderBody struct {
	Items []struct {
		FruitID  int64   `json:"fruit_id"`
		Weight   float64 `json:"weight"`
		Quantity float64 `json:"quantity"`
	} `json:"items"`
	AddressID          int64   `json:"address_id"`
	ShippingAddress    string  `json:"shipping_address"`
	ShippingCity       string  `json:"shipping_city"`
	ShippingPostalCode string  `json:"shipping_postal_code"`
	ShippingCountry    string  `json:"shipping_country"`
	PaymentMethod      string  `json:"payment_method"`
	Notes              *string `json:"notes"`
}

// orderServer records order requests and answers with whatever reply is
// configured at the time. A gate holds replies until it is closed.
type orderServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []orderBody
	status   int
	body     string
	gate     chan struct{}
	arrived  chan struct{}
}

func newOrderServer(t *testing.T) *orderServer {
	t.Helper()

	s := &orderServer{arrived: make(chan struct{}, 8)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *orderServer) client() *api.Client {
	return api.NewClient(s.URL, s.Server.Client())
}

func (s *orderServer) reply(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *orderServer) hold() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *orderServer) received() []orderBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orderBody(nil), s.requests...)
}

func (s *orderServer) handle(w http.ResponseWriter, r *http.Request) {
	var body orderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, body)
	status, reply, gate := s.status, s.body, s.gate
	s.mu.Unlock()

	s.arrived <- struct{}{}
	if gate != nil {
		<-gate
	}

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write([]byte(reply))
}
