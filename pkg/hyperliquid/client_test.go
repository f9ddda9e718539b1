package hyperliquid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func infoServer(t *testing.T, handler func(req infoRequest) (any, int)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req infoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, status := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientGetTicker(t *testing.T) {
	srv := infoServer(t, func(req infoRequest) (any, int) {
		if req.Type != "ticker" || req.Symbol != "USOL/USDC" {
			t.Errorf("unexpected request: %+v", req)
		}
		return tickerPayload{Bid: 142.9, Ask: 143.1, Last: 143.0, Volume24h: 50000, Time: 1700000000000}, http.StatusOK
	})
	defer srv.Close()

	c := NewClient(srv.URL, "0xwallet", nil, quietLogger())
	ticker, err := c.GetTicker(context.Background(), "USOL/USDC")
	if err != nil {
		t.Fatal(err)
	}
	if ticker.LastPrice != 143.0 || ticker.BidPrice != 142.9 || ticker.AskPrice != 143.1 {
		t.Errorf("ticker mismatch: %+v", ticker)
	}
}

func TestClientRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(tickerPayload{Last: 143.0})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "0xwallet", nil, quietLogger())
	ticker, err := c.GetTicker(context.Background(), "USOL/USDC")
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if ticker.LastPrice != 143.0 {
		t.Errorf("last price = %v, want 143.0", ticker.LastPrice)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "still down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "0xwallet", nil, quietLogger())
	if _, err := c.GetTicker(context.Background(), "USOL/USDC"); err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
	if calls.Load() != maxRetries {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries)
	}
}

func TestClientDiscoverMarkets(t *testing.T) {
	srv := infoServer(t, func(req infoRequest) (any, int) {
		return []marketPayload{
			{Symbol: "USOL/USDC", Type: "spot", BaseAsset: "USOL", QuoteAsset: "USDC"},
			{Symbol: "SOL/USDC:USDC", Type: "swap", BaseAsset: "SOL", QuoteAsset: "USDC"},
			{Symbol: "UBTC/USDC", Type: "spot", BaseAsset: "UBTC", QuoteAsset: "USDC"},
		}, http.StatusOK
	})
	defer srv.Close()

	c := NewClient(srv.URL, "0xwallet", nil, quietLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	spot, perp, err := c.DiscoverMarkets("SOL")
	if err != nil {
		t.Fatal(err)
	}
	if spot != "USOL/USDC" {
		t.Errorf("spot = %q, want USOL/USDC", spot)
	}
	if perp != "SOL/USDC:USDC" {
		t.Errorf("perp = %q, want SOL/USDC:USDC", perp)
	}
}

func TestClientDiscoverMarketsMissing(t *testing.T) {
	srv := infoServer(t, func(req infoRequest) (any, int) {
		return []marketPayload{
			{Symbol: "USOL/USDC", Type: "spot"},
		}, http.StatusOK
	})
	defer srv.Close()

	c := NewClient(srv.URL, "0xwallet", nil, quietLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.DiscoverMarkets("SOL"); err == nil {
		t.Error("expected error when the perp market is missing")
	}
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotWallet string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWallet = r.Header.Get("HL-API-WALLET")
		if r.Header.Get("HL-SIGNATURE") == "" || r.Header.Get("HL-TIMESTAMP") == "" {
			t.Error("missing HMAC auth headers")
		}
		json.NewEncoder(w).Encode(tickerPayload{Last: 143.0})
	}))
	defer srv.Close()

	auth := NewHMACAuthenticator("0xagent", "secret")
	c := NewClient(srv.URL, "0xwallet", auth, quietLogger())
	if _, err := c.GetTicker(context.Background(), "USOL/USDC"); err != nil {
		t.Fatal(err)
	}
	if gotWallet != "0xagent" {
		t.Errorf("api wallet header = %q, want 0xagent", gotWallet)
	}
}
