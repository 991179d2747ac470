package coinpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second), srv
}

func TestTruncateAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "0.123456789", want: "0.12345678"},
		{in: "0.999999999", want: "0.99999999"},
		{in: "-0.123456789", want: "-0.12345678"},
		{in: "0.05", want: "0.05"},
		{in: "15", want: "15"},
	}

	for _, tt := range tests {
		got := TruncateAmount(decimal.RequireFromString(tt.in))
		if got.String() != tt.want {
			t.Fatalf("TruncateAmount(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestChargeSendsTruncatedAmount(t *testing.T) {
	var sent map[string]interface{}
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/send" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"success":true}`)
	}))

	out := client.Charge(context.Background(), "payer", "receiver", decimal.RequireFromString("0.123456789"))
	if out.Err != "" {
		t.Fatalf("unexpected transport error: %s", out.Err)
	}
	if sent["amount"] != "0.12345678" {
		t.Fatalf("transmitted amount = %v, want 0.12345678", sent["amount"])
	}
	if sent["from"] != "payer" || sent["to"] != "receiver" {
		t.Fatalf("unexpected accounts in payload: %v", sent)
	}
}

func TestChargeTransportErrorDegradesToOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, time.Second)
	out := client.Charge(context.Background(), "a", "b", decimal.NewFromInt(1))
	if out.Err == "" {
		t.Fatal("expected error text on transport failure")
	}
	if out.Fields != nil {
		t.Fatalf("expected no parsed fields, got %v", out.Fields)
	}
}

func TestChargeClassifiesHTMLBody(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>success! payment confirmed</body></html>`)
	}))

	out := client.Charge(context.Background(), "a", "b", decimal.NewFromInt(1))
	if !out.HTML {
		t.Fatal("expected HTML body to be flagged")
	}
	if out.Fields != nil {
		t.Fatal("HTML body must not yield parsed fields")
	}
}

func TestChargeKeepsRawBodyOnNon2xx(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":"insufficient_funds"}`)
	}))

	out := client.Charge(context.Background(), "a", "b", decimal.NewFromInt(1))
	if out.Err != "" {
		t.Fatalf("body-carrying non-2xx must not be a transport error, got %s", out.Err)
	}
	if out.Fields["error"] != "insufficient_funds" {
		t.Fatalf("expected parsed error field, got %v", out.Fields)
	}
}

func TestChargeViaBillRedeemsIntent(t *testing.T) {
	var payCalls int
	var payPayload map[string]interface{}
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bill/create":
			fmt.Fprint(w, `{"bill_id":"bill-42"}`)
		case "/api/bill/pay":
			payCalls++
			if err := json.NewDecoder(r.Body).Decode(&payPayload); err != nil {
				t.Fatalf("decode pay request: %v", err)
			}
			fmt.Fprint(w, `{"success":true,"txid":"tx-bill"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	out := client.ChargeViaBill(context.Background(), "payer", "receiver", decimal.RequireFromString("0.05"))
	if payCalls != 1 {
		t.Fatalf("expected exactly one redeem call, got %d", payCalls)
	}
	if payPayload["bill_id"] != "bill-42" || payPayload["from"] != "payer" {
		t.Fatalf("unexpected redeem payload: %v", payPayload)
	}
	if out.Fields["txid"] != "tx-bill" {
		t.Fatalf("expected redeem response as outcome, got %v", out.Fields)
	}
}

func TestChargeViaBillHardFailsWithoutIntentID(t *testing.T) {
	var payCalls int
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bill/create":
			fmt.Fprint(w, `{"status":"accepted"}`)
		case "/api/bill/pay":
			payCalls++
		}
	}))

	out := client.ChargeViaBill(context.Background(), "a", "b", decimal.NewFromInt(1))
	if payCalls != 0 {
		t.Fatalf("redeem must not be called without an intent id, got %d calls", payCalls)
	}
	if out.Err == "" {
		t.Fatal("expected hard failure when intent creation yields no id")
	}
}

func TestLookupTransactionProbesPathsInOrder(t *testing.T) {
	var paths []string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/tx/tx-9":
			w.WriteHeader(http.StatusNotFound)
		case "/api/transactions/tx-9":
			fmt.Fprint(w, `{"status":"confirmed"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	fields, _, ok := client.LookupTransaction(context.Background(), "tx-9")
	if !ok {
		t.Fatal("expected a usable body from the second path")
	}
	if fields["status"] != "confirmed" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if len(paths) != 2 {
		t.Fatalf("expected probing to stop after the first usable body, paths: %v", paths)
	}
}

func TestLookupTransactionSkipsEmptyAndMarkupBodies(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tx/tx-1":
			// empty body
		case "/api/transactions/tx-1":
			fmt.Fprint(w, `<html>error</html>`)
		case "/api/payments/tx-1":
			fmt.Fprint(w, `{"state":"success"}`)
		}
	}))

	fields, _, ok := client.LookupTransaction(context.Background(), "tx-1")
	if !ok || fields["state"] != "success" {
		t.Fatalf("expected the third path to win, ok=%v fields=%v", ok, fields)
	}
}

func TestLookupTransactionInconclusiveWhenAllPathsFail(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, _, ok := client.LookupTransaction(context.Background(), "tx-0"); ok {
		t.Fatal("expected no usable body")
	}
}
