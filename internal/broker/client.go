// Package broker places delivery orders through a Kite-compatible order
// service. Order placement is advisory for the watcher: a failed order is
// logged and surfaced, never retried automatically.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/model"
)

const kiteVersion = "3"

// APIError represents an error response from the order service.
type APIError struct {
	StatusCode int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker api error %d (%s): %s", e.StatusCode, e.ErrorType, e.Message)
}

// Client talks to the order service REST API.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates an order service client from broker config.
func NewClient(cfg config.BrokerConfig, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// SetAccessToken installs the session token obtained from GenerateSession.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// PlaceOrder submits a regular order. Zero-value request fields are filled
// with delivery-buy defaults; market orders get immediate-or-cancel validity.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("order requires a trading symbol")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("order requires a positive quantity")
	}
	applyDefaults(&req)

	form := url.Values{}
	form.Set("tradingsymbol", req.Symbol)
	form.Set("exchange", req.Exchange)
	form.Set("quantity", strconv.FormatInt(req.Quantity, 10))
	form.Set("transaction_type", req.TransactionType)
	form.Set("order_type", req.OrderType)
	form.Set("product", req.Product)
	form.Set("validity", req.Validity)

	body, err := c.postForm(ctx, "/orders/regular", form)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal order response: %w", err)
	}

	c.logger.Info("order placed",
		"symbol", req.Symbol,
		"quantity", req.Quantity,
		"order_id", resp.Data.OrderID,
	)
	return &model.OrderResult{OrderID: resp.Data.OrderID}, nil
}

// applyDefaults fills unset order fields with the watcher's standard
// delivery-buy profile.
func applyDefaults(req *model.OrderRequest) {
	if req.Exchange == "" {
		req.Exchange = "NSE"
	}
	if req.TransactionType == "" {
		req.TransactionType = "BUY"
	}
	if req.OrderType == "" {
		req.OrderType = "MARKET"
	}
	if req.Product == "" {
		req.Product = "CNC"
	}
	if req.Validity == "" {
		if req.OrderType == "MARKET" {
			req.Validity = "IOC"
		} else {
			req.Validity = "DAY"
		}
	}
}

// postForm performs an authenticated form-encoded POST.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Kite-Version", kiteVersion)
	if c.apiKey != "" && c.accessToken != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// decodeAPIError extracts the service's error envelope when present.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
	}
	var envelope struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		apiErr.Message = envelope.Message
		apiErr.ErrorType = envelope.ErrorType
	}
	return apiErr
}
