// Package redeemer is the HTTP client for the external code-redemption
// service, which binds a code to a customer and delivers account access.
package redeemer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harveywang/codedesk-backend/internal/recovery"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 4096

var errBaseURLRequired = errors.New("redeemer base url is required")

// Client calls the redemption service over HTTP. It implements
// recovery.Redeemer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a redemption client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type redeemRequest struct {
	Code    string `json:"code"`
	Email   string `json:"email"`
	Channel string `json:"channel"`
}

type redeemResponse struct {
	Metadata struct {
		AccountEmail string `json:"accountEmail"`
	} `json:"metadata"`
}

type redeemErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Redeem binds the code to the customer's email and triggers delivery.
// Non-2xx responses come back as *recovery.RedeemError so callers can treat
// them as a failed attempt rather than an outage.
func (c *Client) Redeem(ctx context.Context, code, email, channel string) (*recovery.RedeemResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "redeemer client not configured")
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code and email are required")
	}

	payload, err := json.Marshal(redeemRequest{Code: code, Email: email, Channel: channel})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal redeem request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/redeem", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build redeem request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute redeem request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &recovery.RedeemError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, body),
		}
	}

	var apiResp redeemResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode redeem response")
	}
	return &recovery.RedeemResult{AccountEmail: apiResp.Metadata.AccountEmail}, nil
}

func errorMessage(status int, body []byte) string {
	var parsed redeemErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("redeem service returned status %d", status)
	}
	return trimmed
}
