package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// FakeClientRegistry serves GET /api/v1/clientes/{id} the way the client
// registry does: 200 with an activo flag for known clients, 404 otherwise.
type FakeClientRegistry struct {
	Server *httptest.Server

	mu      sync.Mutex
	clients map[int64]bool
	status  int
	delay   time.Duration
	calls   atomic.Int64
}

// NewFakeClientRegistry starts a registry that knows the given clients.
// The server is closed on test cleanup.
func NewFakeClientRegistry(t *testing.T, clients map[int64]bool) *FakeClientRegistry {
	t.Helper()

	f := &FakeClientRegistry{clients: make(map[int64]bool, len(clients))}
	for id, active := range clients {
		f.clients[id] = active
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the registry base URL.
func (f *FakeClientRegistry) URL() string {
	return f.Server.URL
}

// SetClient registers or updates a client.
func (f *FakeClientRegistry) SetClient(id int64, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[id] = active
}

// FailWith makes every lookup answer with status. Zero restores normal behavior.
func (f *FakeClientRegistry) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// SetDelay holds every response for d.
func (f *FakeClientRegistry) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns how many lookups reached the registry.
func (f *FakeClientRegistry) Calls() int64 {
	return f.calls.Load()
}

func (f *FakeClientRegistry) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	f.mu.Lock()
	status, delay := f.status, f.delay
	f.mu.Unlock()

	if !waitOrDone(r, delay) {
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	raw, ok := strings.CutPrefix(r.URL.Path, "/api/v1/clientes/")
	if r.Method != http.MethodGet || !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	active, known := f.clients[id]
	f.mu.Unlock()
	if !known {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "activo": active})
}

// FakeTaxService serves POST /calcular. Each item is taxed at the rate of
// its categoria; unknown categories are taxed at zero.
type FakeTaxService struct {
	Server *httptest.Server

	mu     sync.Mutex
	rates  map[string]decimal.Decimal
	status int
	delay  time.Duration
	calls  atomic.Int64
}

// NewFakeTaxService starts a tax service with the given rates per category.
// The server is closed on test cleanup.
func NewFakeTaxService(t *testing.T, rates map[string]string) *FakeTaxService {
	t.Helper()

	f := &FakeTaxService{rates: make(map[string]decimal.Decimal, len(rates))}
	for code, rate := range rates {
		f.rates[strings.ToUpper(code)] = decimal.RequireFromString(rate)
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the tax service base URL.
func (f *FakeTaxService) URL() string {
	return f.Server.URL
}

// FailWith makes every calculation answer with status. Zero restores normal behavior.
func (f *FakeTaxService) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// SetDelay holds every response for d.
func (f *FakeTaxService) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Calls returns how many calculations reached the service.
func (f *FakeTaxService) Calls() int64 {
	return f.calls.Load()
}

type fakeTaxItem struct {
	Descripcion    string          `json:"descripcion"`
	Cantidad       int             `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precio_unitario"`
	Categoria      string          `json:"categoria"`
}

func (f *FakeTaxService) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	f.mu.Lock()
	status, delay := f.status, f.delay
	f.mu.Unlock()

	if !waitOrDone(r, delay) {
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.Method != http.MethodPost || r.URL.Path != "/calcular" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req struct {
		Items []fakeTaxItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	details := make([]map[string]any, len(req.Items))
	f.mu.Lock()
	for i, it := range req.Items {
		subtotal := it.PrecioUnitario.Mul(decimal.NewFromInt(int64(it.Cantidad)))
		tax := subtotal.Mul(f.rates[strings.ToUpper(it.Categoria)]).Round(2)
		details[i] = map[string]any{
			"descripcion": it.Descripcion,
			"subtotal":    subtotal,
			"impuesto":    tax,
			"descuento":   decimal.Zero,
			"total":       subtotal.Add(tax),
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"detalle_items": details})
}

// waitOrDone sleeps for d unless the caller gives up first.
func waitOrDone(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}
