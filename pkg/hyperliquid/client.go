package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/models"
)

const (
	defaultBaseURL = "https://api.hyperliquid.xyz"

	maxRetries     = 3
	retryBaseDelay = 200 * time.Millisecond
)

// Client talks to the Hyperliquid REST API and normalizes its payloads
// into the models the engine consumes. Transport failures are retried
// with jittered exponential backoff before surfacing; once a call
// returns an error here, the caller treats it as "no data this cycle".
type Client struct {
	baseURL    string
	mainWallet string
	httpClient *http.Client
	auth       Authenticator
	logger     *logrus.Logger

	mu      sync.RWMutex
	markets map[string]models.Market
}

func NewClient(baseURL, mainWallet string, auth Authenticator, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		mainWallet: mainWallet,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		logger:     logger,
		markets:    make(map[string]models.Market),
	}
}

// Connect loads and caches the market list, verifying connectivity.
func (c *Client) Connect(ctx context.Context) error {
	var resp []marketPayload
	if err := c.post(ctx, "/info", infoRequest{Type: "meta"}, &resp); err != nil {
		return fmt.Errorf("failed to load markets: %w", err)
	}

	c.mu.Lock()
	for _, m := range resp {
		c.markets[m.Symbol] = models.Market{
			Symbol:     m.Symbol,
			Type:       models.MarketType(m.Type),
			BaseAsset:  m.BaseAsset,
			QuoteAsset: m.QuoteAsset,
			UpdatedAt:  time.Now(),
		}
	}
	c.mu.Unlock()

	c.logger.WithField("markets", len(resp)).Info("Connected to exchange")
	return nil
}

// DiscoverMarkets locates the spot and perpetual markets for a base
// asset from the cached market list. Hyperliquid lists wrapped spot
// assets with a U prefix (USOL/USDC) while the perp trades as
// SOL/USDC:USDC.
func (c *Client) DiscoverMarkets(base string) (spotSymbol, perpSymbol string, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wantSpot := strings.ToUpper("U" + base + "/USDC")
	wantPerp := strings.ToUpper(base + "/USDC:USDC")

	for symbol, market := range c.markets {
		switch {
		case market.Type == models.MarketTypeSpot && strings.ToUpper(symbol) == wantSpot:
			spotSymbol = symbol
		case market.Type == models.MarketTypeSwap && strings.ToUpper(symbol) == wantPerp:
			perpSymbol = symbol
		}
	}

	if spotSymbol == "" || perpSymbol == "" {
		return spotSymbol, perpSymbol, fmt.Errorf("markets for %s not found (spot=%q perp=%q)", base, spotSymbol, perpSymbol)
	}
	return spotSymbol, perpSymbol, nil
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	var resp tickerPayload
	if err := c.post(ctx, "/info", infoRequest{Type: "ticker", Symbol: symbol}, &resp); err != nil {
		return nil, fmt.Errorf("fetching ticker for %s: %w", symbol, err)
	}
	return &models.Ticker{
		Symbol:    symbol,
		BidPrice:  resp.Bid,
		AskPrice:  resp.Ask,
		LastPrice: resp.Last,
		Volume24h: resp.Volume24h,
		Timestamp: time.UnixMilli(resp.Time),
	}, nil
}

func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	var resp bookPayload
	if err := c.post(ctx, "/info", infoRequest{Type: "l2Book", Symbol: symbol, Depth: depth}, &resp); err != nil {
		return nil, fmt.Errorf("fetching order book for %s: %w", symbol, err)
	}

	book := &models.OrderBook{Symbol: symbol, Timestamp: time.UnixMilli(resp.Time)}
	for _, lvl := range resp.Bids {
		book.Bids = append(book.Bids, models.OrderBookLevel{Price: lvl.Price, Size: lvl.Size})
	}
	for _, lvl := range resp.Asks {
		book.Asks = append(book.Asks, models.OrderBookLevel{Price: lvl.Price, Size: lvl.Size})
	}
	return book, nil
}

func (c *Client) GetBalance(ctx context.Context) (models.Balance, error) {
	var resp []balancePayload
	req := infoRequest{Type: "spotClearinghouseState", User: c.mainWallet}
	if err := c.post(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("fetching balance: %w", err)
	}

	balance := make(models.Balance, len(resp))
	for _, entry := range resp {
		balance[entry.Coin] = models.Asset{
			Free:  entry.Free,
			Used:  entry.Used,
			Total: entry.Total,
		}
	}
	return balance, nil
}

func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	var resp []positionPayload
	req := infoRequest{Type: "clearinghouseState", User: c.mainWallet}
	if err := c.post(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	positions := make([]models.Position, 0, len(resp))
	for _, entry := range resp {
		pos, err := entry.normalize()
		if err != nil {
			c.logger.WithError(err).WithField("symbol", entry.Symbol).Warn("Dropping malformed position payload")
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (c *Client) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	var resp fundingPayload
	if err := c.post(ctx, "/info", infoRequest{Type: "fundingRate", Symbol: symbol}, &resp); err != nil {
		return 0, fmt.Errorf("fetching funding rate for %s: %w", symbol, err)
	}
	return resp.FundingRate, nil
}

func (c *Client) PlaceOrder(ctx context.Context, order *models.OrderRequest) (string, error) {
	req := orderRequestPayload{
		Action:     "order",
		Symbol:     order.Symbol,
		Side:       string(order.Side),
		Type:       string(order.Type),
		Price:      order.Price,
		Size:       order.Size,
		MarketType: string(order.MarketType),
		ReduceOnly: order.ReduceOnly,
	}
	var resp orderResponsePayload
	if err := c.post(ctx, "/exchange", req, &resp); err != nil {
		return "", fmt.Errorf("placing %s %s order for %s: %w", order.Side, order.Type, order.Symbol, err)
	}
	if resp.Status != "ok" {
		return "", fmt.Errorf("order rejected: %s", resp.Error)
	}
	return resp.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID, symbol string, marketType models.MarketType) error {
	req := orderRequestPayload{
		Action:     "cancel",
		OrderID:    orderID,
		Symbol:     symbol,
		MarketType: string(marketType),
	}
	var resp orderResponsePayload
	if err := c.post(ctx, "/exchange", req, &resp); err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("cancel rejected: %s", resp.Error)
	}
	return nil
}

func (c *Client) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	var resp []candlePayload
	req := infoRequest{Type: "candleSnapshot", Symbol: symbol, Interval: timeframe, Limit: limit}
	if err := c.post(ctx, "/info", req, &resp); err != nil {
		return nil, fmt.Errorf("fetching OHLCV for %s: %w", symbol, err)
	}

	candles := make([]models.Candle, 0, len(resp))
	for _, entry := range resp {
		candles = append(candles, models.Candle{
			Open:      entry.Open,
			High:      entry.High,
			Low:       entry.Low,
			Close:     entry.Close,
			Volume:    entry.Volume,
			Timestamp: time.UnixMilli(entry.Time),
		})
	}
	return candles, nil
}

// post sends a JSON request with auth headers and retry. Backoff doubles
// per attempt with ±20% jitter so workers don't stampede the upstream.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := jitteredBackoff(attempt)
			c.logger.WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt + 1,
				"delay":   delay.String(),
			}).Warn("Retrying API call")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.doRequest(ctx, path, body, out)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != nil {
		if err := c.auth.AddAuthHeaders(req, http.MethodPost, path, string(body)); err != nil {
			return fmt.Errorf("signing request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func jitteredBackoff(attempt int) time.Duration {
	backoff := retryBaseDelay * time.Duration(1<<attempt)
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(backoff) * jitter)
}
