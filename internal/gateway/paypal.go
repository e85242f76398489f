// Package gateway talks to a PayPal-compatible checkout REST API: an OAuth2
// client-credentials token exchange, order creation and order capture.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	// StatusCompleted is the only capture status treated as a successful payment.
	StatusCompleted = "COMPLETED"

	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"
)

// BaseURLFor maps an environment name to the API base URL.
func BaseURLFor(environment string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "", "sandbox":
		return SandboxBaseURL, nil
	case "live", "production":
		return LiveBaseURL, nil
	}
	return "", fmt.Errorf("gateway: unknown environment %q", environment)
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	BrandName    string
	Timeout      time.Duration
	// MaxConsecutiveFailures trips the circuit breaker.
	MaxConsecutiveFailures uint32
	// OpenInterval is how long the breaker rejects calls once tripped.
	OpenInterval time.Duration
	// HTTPClient is the transport used for token and API calls.
	HTTPClient *http.Client
}

// Money is an amount in a currency's decimal notation, e.g. "5.00".
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// CreateOrderRequest describes a checkout order to create.
type CreateOrderRequest struct {
	ReferenceID string
	Amount      Money
	Description string
	ReturnURL   string
	CancelURL   string
}

// Order is the gateway's view of a created checkout order.
type Order struct {
	ID          string
	Status      string
	ApprovalURL string
}

// Capture is the outcome of capturing an approved order.
type Capture struct {
	OrderID    string
	Status     string
	PayerEmail string
	CaptureID  string
}

// Completed reports whether the capture finalised the payment.
func (c Capture) Completed() bool {
	return c.Status == StatusCompleted
}

// Client calls the checkout API through an OAuth2 transport guarded by a
// circuit breaker.
type Client struct {
	baseURL string
	brand   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
}

type response struct {
	status int
	body   []byte
}

// NewClient builds a Client. Tokens are fetched lazily and cached until expiry.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("gateway: client id and secret are required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SandboxBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.OpenInterval <= 0 {
		cfg.OpenInterval = 30 * time.Second
	}
	transport := cfg.HTTPClient
	if transport == nil {
		transport = &http.Client{Timeout: cfg.Timeout}
	}

	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, transport)
	httpClient := credentials.Client(tokenCtx)
	httpClient.Timeout = cfg.Timeout

	breaker := gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: cfg.OpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// client errors are answers from a healthy gateway
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError)
		},
	})

	brand := cfg.BrandName
	if brand == "" {
		brand = "Court Booking App"
	}
	return &Client{baseURL: base, brand: brand, http: httpClient, breaker: breaker}, nil
}

type createOrderPayload struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Amount      Money  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type applicationContext struct {
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
	BrandName   string `json:"brand_name"`
	LandingPage string `json:"landing_page"`
	UserAction  string `json:"user_action"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder creates a checkout order and returns its approval URL. An order
// without an approval link fails with ErrMissingApprovalURL.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	payload := createOrderPayload{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.ReferenceID,
			Amount:      req.Amount,
			Description: req.Description,
		}},
		ApplicationContext: applicationContext{
			ReturnURL:   req.ReturnURL,
			CancelURL:   req.CancelURL,
			BrandName:   c.brand,
			LandingPage: "LOGIN",
			UserAction:  "PAY_NOW",
		},
	}

	var decoded orderResponse
	if err := c.do(ctx, http.MethodPost, ordersPath, payload, &decoded); err != nil {
		return Order{}, err
	}

	order := Order{ID: decoded.ID, Status: decoded.Status}
	for _, l := range decoded.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			order.ApprovalURL = l.Href
			break
		}
	}
	if order.ID == "" || order.ApprovalURL == "" {
		return order, ErrMissingApprovalURL
	}
	return order, nil
}

// CaptureOrder captures an approved order identified by the redirect token.
// A non-completed status is returned as data, not as an error.
func (c *Client) CaptureOrder(ctx context.Context, token string) (Capture, error) {
	if strings.TrimSpace(token) == "" {
		return Capture{}, errors.New("gateway: capture token is required")
	}

	var decoded orderResponse
	path := ordersPath + "/" + url.PathEscape(token) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &decoded); err != nil {
		return Capture{}, err
	}

	capture := Capture{OrderID: decoded.ID, Status: decoded.Status, PayerEmail: decoded.Payer.EmailAddress}
	if capture.OrderID == "" {
		capture.OrderID = token
	}
	for _, unit := range decoded.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			capture.CaptureID = unit.Payments.Captures[0].ID
			break
		}
	}
	return capture, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: encode request: %w", err)
	}

	res, err := c.breaker.Execute(func() (response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return response{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		httpRes, err := c.http.Do(req)
		if err != nil {
			// a rejected token exchange is an answer, not a transport failure
			var retrieveErr *oauth2.RetrieveError
			if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
				return response{}, newAPIError(retrieveErr.Response.StatusCode, retrieveErr.Body)
			}
			return response{}, &TransportError{Op: method + " " + path, Err: err}
		}
		defer httpRes.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpRes.Body, 1<<20))
		if err != nil {
			return response{}, &TransportError{Op: method + " " + path, Err: err}
		}
		if httpRes.StatusCode >= http.StatusBadRequest {
			return response{}, newAPIError(httpRes.StatusCode, data)
		}
		return response{status: httpRes.StatusCode, body: data}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &TransportError{Op: method + " " + path, Err: err}
		}
		return err
	}

	if out == nil || len(res.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}
