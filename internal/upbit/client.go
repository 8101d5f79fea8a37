package upbit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
	"github.com/kanghyeon/autocoin/pkg/ratelimit"
)

const (
	// DefaultAPIURL is the production REST endpoint.
	DefaultAPIURL = "https://api.upbit.com/v1"

	requestTimeout = 30 * time.Second
	quoteCurrency  = "KRW"
)

// Client is the authenticated REST client for the exchange. Every request
// passes through the shared rate limiter before hitting the wire.
type Client struct {
	httpClient *http.Client
	accessKey  string
	secretKey  string
	baseURL    string
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// NewClient creates an exchange client sharing the given rate limiter.
func NewClient(accessKey, secretKey string, limiter *ratelimit.Limiter, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    DefaultAPIURL,
		limiter:    limiter,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMarkets returns the full market catalogue.
func (c *Client) GetMarkets(ctx context.Context) ([]MarketInfo, error) {
	var markets []MarketInfo
	if err := c.get(ctx, "/market/all", nil, &markets); err != nil {
		return nil, errors.Wrap(err, "get markets")
	}
	return markets, nil
}

// GetTopKRWMarkets returns up to n KRW-quoted market codes, in catalogue order.
func (c *Client) GetTopKRWMarkets(ctx context.Context, n int) ([]string, error) {
	markets, err := c.GetMarkets(ctx)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, n)
	for _, m := range markets {
		if len(codes) == n {
			break
		}
		if len(m.Market) > 4 && m.Market[:4] == quoteCurrency+"-" {
			codes = append(codes, m.Market)
		}
	}
	return codes, nil
}

// GetAccounts returns all currency balances of the account.
func (c *Client) GetAccounts(ctx context.Context) ([]AccountInfo, error) {
	var accounts []AccountInfo
	if err := c.get(ctx, "/accounts", nil, &accounts); err != nil {
		return nil, errors.Wrap(err, "get accounts")
	}
	return accounts, nil
}

// GetBalance returns the available KRW balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	for _, a := range accounts {
		if a.Currency == quoteCurrency {
			return decimal.NewFromFloat(a.Available()), nil
		}
	}
	return decimal.Zero, nil
}

// BuyMarketOrder places a market buy spending amountQuote KRW.
func (c *Client) BuyMarketOrder(ctx context.Context, market string, amountQuote decimal.Decimal) (entity.Order, error) {
	req := orderRequest{
		Market:  market,
		Side:    "bid",
		Price:   amountQuote.String(),
		OrdType: "price",
	}

	var resp orderResponse
	if err := c.post(ctx, "/orders", req, &resp); err != nil {
		return entity.Order{}, errors.Wrap(err, "buy market order")
	}
	return resp.toOrder(), nil
}

// SellMarketOrder places a market sell of volume base units.
func (c *Client) SellMarketOrder(ctx context.Context, market string, volume decimal.Decimal) (entity.Order, error) {
	req := orderRequest{
		Market:  market,
		Side:    "ask",
		Volume:  volume.String(),
		OrdType: "market",
	}

	var resp orderResponse
	if err := c.post(ctx, "/orders", req, &resp); err != nil {
		return entity.Order{}, errors.Wrap(err, "sell market order")
	}
	return resp.toOrder(), nil
}

// GetOrder fetches a single order by exchange id.
func (c *Client) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	params := url.Values{"uuid": {id}}

	var resp orderResponse
	if err := c.get(ctx, "/order", params, &resp); err != nil {
		return entity.Order{}, errors.Wrap(err, "get order")
	}
	return resp.toOrder(), nil
}

// CancelOrder cancels a waiting order by exchange id.
func (c *Client) CancelOrder(ctx context.Context, id string) (entity.Order, error) {
	params := url.Values{"uuid": {id}}

	var resp orderResponse
	if err := c.request(ctx, http.MethodDelete, "/order", params, nil, &resp); err != nil {
		return entity.Order{}, errors.Wrap(err, "cancel order")
	}
	return resp.toOrder(), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.request(ctx, http.MethodGet, path, params, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.request(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return errors.Wrap(err, "acquire rate limit slot")
	}

	query := params.Encode()
	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := authToken(c.accessKey, c.secretKey, query)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "exchange request failed")
	}
	defer resp.Body.Close()

	return c.handleResponse(resp, out)
}

func (c *Client) handleResponse(resp *http.Response, out any) error {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return ErrRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrUnauthorized
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: string(payload)}
		var envelope apiErrorResponse
		if json.Unmarshal(payload, &envelope) == nil && envelope.Error.Name != "" {
			apiErr.Name = envelope.Error.Name
			apiErr.Message = envelope.Error.Message
		}
		c.logger.Warn("exchange returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("name", apiErr.Name))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return nil
}
