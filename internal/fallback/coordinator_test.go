package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"btc-wallet-sync/internal/domain"
)

type stubProvider struct {
	name  string
	pages []*Page
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Ping(ctx context.Context) error { return s.err }

func (s *stubProvider) FetchPage(ctx context.Context, addr, cursor string, limit int) (*Page, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.pages) == 0 {
		return &Page{Provider: s.name}, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func makeTx(hash string) *domain.Transaction {
	return &domain.Transaction{
		TxHash:    hash,
		Symbol:    "BTC",
		Type:      domain.TypeTransferIn,
		Quantity:  decimal.New(1, 0),
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Exchange:  "esplora",
	}
}

func TestFirst_PrefersEarlierProvider(t *testing.T) {
	first := &stubProvider{
		name:  "esplora",
		pages: []*Page{{Provider: "esplora", Transactions: []*domain.Transaction{makeTx("a")}, HasMore: true}},
	}
	second := &stubProvider{name: "blockchain_info"}

	coord := NewCoordinator([]Provider{first, second})
	page, winner, err := coord.First(context.Background(), "addr", 50)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if winner.Name() != "esplora" {
		t.Fatalf("winner = %s, want esplora", winner.Name())
	}
	if len(page.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(page.Transactions))
	}
	if second.calls != 0 {
		t.Fatalf("second provider was called %d times", second.calls)
	}
}

func TestFirst_FallsThroughOnError(t *testing.T) {
	first := &stubProvider{name: "esplora", err: errors.New("502 bad gateway")}
	second := &stubProvider{
		name:  "blockchain_info",
		pages: []*Page{{Provider: "blockchain_info", Transactions: []*domain.Transaction{makeTx("b")}, HasMore: true}},
	}

	coord := NewCoordinator([]Provider{first, second})
	page, winner, err := coord.First(context.Background(), "addr", 50)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if winner.Name() != "blockchain_info" {
		t.Fatalf("winner = %s, want blockchain_info", winner.Name())
	}
	if page.Provider != "blockchain_info" {
		t.Fatalf("page provider = %s", page.Provider)
	}
}

func TestFirst_FallsThroughOnEmptyPage(t *testing.T) {
	first := &stubProvider{name: "esplora"} // responds with no history
	second := &stubProvider{
		name:  "blockcypher",
		pages: []*Page{{Provider: "blockcypher", Transactions: []*domain.Transaction{makeTx("c")}}},
	}

	coord := NewCoordinator([]Provider{first, second})
	_, winner, err := coord.First(context.Background(), "addr", 50)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if winner.Name() != "blockcypher" {
		t.Fatalf("winner = %s, want blockcypher", winner.Name())
	}
}

func TestFirst_AllProvidersExhausted(t *testing.T) {
	providers := []Provider{
		&stubProvider{name: "esplora", err: errors.New("timeout")},
		&stubProvider{name: "blockchain_info", err: errors.New("429")},
		&stubProvider{name: "blockcypher"},
	}

	coord := NewCoordinator(providers)
	_, _, err := coord.First(context.Background(), "addr", 50)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("error %v does not match ErrProvidersExhausted", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error %T is not *ExhaustedError", err)
	}
	if len(exhausted.Causes) != 3 {
		t.Fatalf("got %d causes, want 3", len(exhausted.Causes))
	}
	if !errors.Is(exhausted.Causes["blockcypher"], ErrEmptyHistory) {
		t.Fatalf("blockcypher cause = %v", exhausted.Causes["blockcypher"])
	}
}

func TestFirst_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &stubProvider{name: "esplora"}
	coord := NewCoordinator([]Provider{provider})
	_, _, err := coord.First(ctx, "addr", 50)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times after cancel", provider.calls)
	}
}

func TestConnectivity(t *testing.T) {
	coord := NewCoordinator([]Provider{
		&stubProvider{name: "esplora"},
		&stubProvider{name: "blockcypher", err: errors.New("unreachable")},
	})

	status := coord.Connectivity(context.Background())
	if !status["esplora"] {
		t.Error("esplora should be reachable")
	}
	if status["blockcypher"] {
		t.Error("blockcypher should be unreachable")
	}
}

func TestExhaustedError_Message(t *testing.T) {
	err := &ExhaustedError{Causes: map[string]error{
		"blockcypher": errors.New("boom"),
		"esplora":     ErrEmptyHistory,
	}}
	want := "all providers failed or returned no data [blockcypher: boom; esplora: no transaction history]"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
