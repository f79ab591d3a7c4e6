package avatax

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

	"github.com/google/uuid"

	"github.com/storelens/avatax-bridge/internal/obs"
	"github.com/storelens/avatax-bridge/internal/resilience"
)

const (
	getTaxPath    = "/1.0/tax/get"
	cancelTaxPath = "/1.0/tax/cancel"
)

// ErrResultNotSuccess is returned when the tax service answers with a non-success result code.
var ErrResultNotSuccess = errors.New("avatax: result code was not Success")

// Client calls the tax service's legacy REST API. Credentials are sent as
// HTTP basic auth (account number + license key).
type Client struct {
	Account    string
	LicenseKey string
	BaseURL    string
	HTTP       resilience.HTTPClient
}

// GetTax submits a tax calculation document and returns the computed result.
func (c *Client) GetTax(ctx context.Context, req GetTaxRequest) (GetTaxResult, error) {
	var res GetTaxResult
	if err := c.post(ctx, "get", getTaxPath, req, &res); err != nil {
		return GetTaxResult{}, err
	}
	if res.ResultCode != ResultSuccess {
		return res, fmt.Errorf("%w: %s", ErrResultNotSuccess, summariseMessages(res.Messages))
	}
	return res, nil
}

// CancelTax voids a previously committed document.
func (c *Client) CancelTax(ctx context.Context, req CancelTaxRequest) (CancelTaxResult, error) {
	var res CancelTaxResult
	if err := c.post(ctx, "cancel", cancelTaxPath, req, &res); err != nil {
		return CancelTaxResult{}, err
	}
	if res.ResultCode != ResultSuccess {
		return res, fmt.Errorf("%w: %s", ErrResultNotSuccess, summariseMessages(res.Messages))
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	if strings.TrimSpace(c.Account) == "" || strings.TrimSpace(c.LicenseKey) == "" {
		return errors.New("avatax: credentials not configured")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("avatax: encode request: %w", err)
	}
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("avatax: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", uuid.NewString())
	req.SetBasicAuth(c.Account, c.LicenseKey)

	start := time.Now()
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		obs.ObserveAvataxCall(op, "error", obs.DurationMillis(time.Since(start)))
		return fmt.Errorf("avatax: %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		obs.ObserveAvataxCall(op, "error", obs.DurationMillis(time.Since(start)))
		return fmt.Errorf("avatax: read response: %w", err)
	}
	// The service reports document errors inside the body with a normal
	// status, so decode before looking at the status code.
	if err := json.Unmarshal(body, out); err != nil {
		obs.ObserveAvataxCall(op, "error", obs.DurationMillis(time.Since(start)))
		return fmt.Errorf("avatax: decode response (status %d): %w", resp.StatusCode, err)
	}
	obs.ObserveAvataxCall(op, "ok", obs.DurationMillis(time.Since(start)))
	return nil
}

func summariseMessages(messages []Message) string {
	if len(messages) == 0 {
		return "no detail provided"
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Summary != "" {
			parts = append(parts, m.Summary)
		}
	}
	if len(parts) == 0 {
		return "no detail provided"
	}
	return strings.Join(parts, "; ")
}
