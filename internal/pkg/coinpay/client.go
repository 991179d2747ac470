package coinpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/env"
)

const (
	defaultCoinAPIBaseURL = "http://localhost:8332"

	sendPath       = "/api/send"
	billCreatePath = "/api/bill/create"
	billPayPath    = "/api/bill/pay"
)

// txLookupPaths are the transaction lookup endpoints, probed in this order.
// The upstream exposes several spellings of the same thing; the first one
// that answers with a usable body wins.
var txLookupPaths = []string{
	"/api/tx/%s",
	"/api/transactions/%s",
	"/api/payments/%s",
}

const (
	// StrategyDirect is a single charge call.
	StrategyDirect = "direct"
	// StrategyBill creates a billing intent and redeems it by payer account.
	StrategyBill = "bill"
)

// Client talks to the coin-payment HTTP API. The upstream is loosely
// specified: bodies may be JSON with varying field names, HTML error pages,
// or empty. Remote failures never surface as Go errors from charge calls;
// they degrade to a failure RawOutcome so callers always get something to
// verify and audit.
type Client struct {
	BaseURL string

	HTTPClient *http.Client
}

// RawOutcome is the normalized answer of one charge strategy: the raw body
// kept verbatim for the audit trail, the parsed field map when the body was
// JSON, and transport-level failure information.
type RawOutcome struct {
	Strategy string `json:"strategy"`
	Raw      string `json:"raw"`
	Err      string `json:"error,omitempty"`
	HTML     bool   `json:"html,omitempty"`

	Fields map[string]interface{} `json:"-"`
}

// NewClientFromEnv builds a client from COINPAY_BASE_URL and
// COINPAY_TIMEOUT_SECONDS.
func NewClientFromEnv() *Client {
	timeout := 15 * time.Second
	if v := strings.TrimSpace(env.GetEnv("COINPAY_TIMEOUT_SECONDS", "")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			timeout = d
		}
	}
	return NewClient(env.GetEnv("COINPAY_BASE_URL", defaultCoinAPIBaseURL), timeout)
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// TruncateAmount cuts an amount toward zero to 8 fractional digits. Charges
// always truncate, never round up, so drift in a computed amount can only
// undercharge.
func TruncateAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(8)
}

// Charge runs the direct strategy: one POST against the send endpoint.
func (c *Client) Charge(ctx context.Context, from, to string, amount decimal.Decimal) RawOutcome {
	payload := map[string]interface{}{
		"from":   from,
		"to":     to,
		"amount": TruncateAmount(amount).StringFixed(8),
	}
	return c.post(ctx, StrategyDirect, sendPath, payload)
}

// ChargeViaBill runs the bill strategy: create a billing intent for
// (from, to, amount, now), then redeem it by payer account. If intent
// creation yields no intent identifier the strategy is a hard failure and no
// redeem call is made.
func (c *Client) ChargeViaBill(ctx context.Context, from, to string, amount decimal.Decimal) RawOutcome {
	created := c.post(ctx, StrategyBill, billCreatePath, map[string]interface{}{
		"from":      from,
		"to":        to,
		"amount":    TruncateAmount(amount).StringFixed(8),
		"timestamp": time.Now().Unix(),
	})

	billID := extractBillID(created.Fields)
	if billID == "" {
		if created.Err == "" {
			created.Err = "bill creation returned no intent id"
		}
		return created
	}

	return c.post(ctx, StrategyBill, billPayPath, map[string]interface{}{
		"bill_id": billID,
		"from":    from,
	})
}

// LookupTransaction probes the lookup endpoints for a transaction id and
// returns the first usable body. A path that errors, returns nothing, or
// returns markup is skipped. ok is false when no path produced a body.
func (c *Client) LookupTransaction(ctx context.Context, txID string) (fields map[string]interface{}, raw string, ok bool) {
	id := strings.TrimSpace(txID)
	if id == "" {
		return nil, "", false
	}

	for _, pattern := range txLookupPaths {
		body, err := c.get(ctx, fmt.Sprintf(pattern, id))
		if err != nil {
			continue
		}
		trimmed := strings.TrimSpace(body)
		if trimmed == "" || looksLikeHTML(trimmed) {
			continue
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			return nil, trimmed, true
		}
		return parsed, trimmed, true
	}
	return nil, "", false
}

// post issues one JSON POST and normalizes whatever comes back into a
// RawOutcome. It never returns a Go error: transport failures become failure
// outcomes carrying the error text.
func (c *Client) post(ctx context.Context, strategy, path string, payload map[string]interface{}) RawOutcome {
	out := RawOutcome{Strategy: strategy}

	body, err := json.Marshal(payload)
	if err != nil {
		out.Err = fmt.Sprintf("encode request: %v", err)
		return out
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		out.Err = fmt.Sprintf("build request: %v", err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	out.Raw = strings.TrimSpace(string(raw))

	if out.Raw == "" {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			out.Err = fmt.Sprintf("status %d with empty body", resp.StatusCode)
		} else {
			out.Err = "empty body"
		}
		return out
	}

	// A markup document disguised as a payload is a known upstream failure
	// mode and is classified as failure regardless of status code.
	if looksLikeHTML(out.Raw) {
		out.HTML = true
		return out
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(out.Raw), &parsed); err == nil {
		out.Fields = parsed
	}
	return out
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return string(body), nil
}

// looksLikeHTML reports whether a body is a markup document rather than a
// data payload.
func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "<") {
		return true
	}
	lower := strings.ToLower(trimmed)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype")
}

// extractBillID pulls the billing-intent identifier out of a create response,
// tolerating the upstream's alternate field spellings.
func extractBillID(fields map[string]interface{}) string {
	if fields == nil {
		return ""
	}
	for _, key := range []string{"bill_id", "billId", "bill", "intent_id", "id"} {
		if v, ok := fields[key]; ok {
			if s := stringValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// stringValue renders a JSON scalar as its string form; numbers come back
// from encoding/json as float64 and ids must not pick up a fraction suffix.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
