package coinpay

import (
	"context"
	"strings"
)

type confirmState int

const (
	confirmUnknown confirmState = iota
	confirmPositive
	confirmNegative
)

// TxLookup is the side-channel the verifier uses to cross-check a
// transaction id. *Client implements it.
type TxLookup interface {
	LookupTransaction(ctx context.Context, txID string) (fields map[string]interface{}, raw string, ok bool)
}

// Verifier turns a RawOutcome into a definite verdict. The rules, in order:
//
//  1. Markup body: failure.
//  2. Explicit positive success flag and no error field: if a transaction id
//     is present, probe the lookup endpoints; a positive or inconclusive
//     probe yields success (the upstream's own success flag is trusted when
//     the side-channel is unreachable or ambiguous), an explicit denial
//     yields failure. Without a transaction id, success outright.
//  3. No success flag, no error field, but a transaction id: success only on
//     a positive probe. The upstream gave no signal of its own here, so
//     there is no optimistic fallback.
//  4. Anything else: failure.
type Verifier struct {
	lookup TxLookup
}

// NewVerifier creates a verifier probing through the given lookup.
func NewVerifier(lookup TxLookup) *Verifier {
	return &Verifier{lookup: lookup}
}

// Verify resolves one strategy outcome. The returned transaction id is empty
// unless the verdict is success and the upstream supplied one.
func (v *Verifier) Verify(ctx context.Context, out RawOutcome) (bool, string) {
	if out.HTML {
		return false, ""
	}
	fields := out.Fields
	if fields == nil {
		// Transport failure, empty body or non-JSON payload.
		return false, ""
	}

	hasError := hasErrorField(fields)
	positive, _, present := flagVerdict(fields)
	txID := extractTxID(fields)

	if positive && !hasError {
		if txID == "" {
			return true, ""
		}
		if v.confirm(ctx, txID) == confirmNegative {
			return false, ""
		}
		return true, txID
	}

	if !present && !hasError && txID != "" {
		if v.confirm(ctx, txID) == confirmPositive {
			return true, txID
		}
		return false, ""
	}

	return false, ""
}

// confirm probes the lookup endpoints for an independent read on the
// transaction. Unreachable endpoints and ambiguous bodies are inconclusive,
// never negative.
func (v *Verifier) confirm(ctx context.Context, txID string) confirmState {
	if v.lookup == nil {
		return confirmUnknown
	}
	fields, raw, ok := v.lookup.LookupTransaction(ctx, txID)
	if !ok {
		return confirmUnknown
	}

	if fields != nil {
		positive, negative, present := flagVerdict(fields)
		if positive {
			return confirmPositive
		}
		if negative {
			return confirmNegative
		}
		if present {
			// A flag key exists but carries something like "pending".
			return confirmUnknown
		}
	}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "confirmed") || strings.Contains(lower, "success") {
		return confirmPositive
	}
	return confirmUnknown
}

// flagKeys are the upstream's known spellings of a success flag.
var flagKeys = []string{"success", "status", "state", "confirmed"}

var positiveFlagWords = map[string]bool{
	"true": true, "success": true, "successful": true, "ok": true,
	"confirmed": true, "completed": true, "complete": true, "paid": true,
	"yes": true, "1": true,
}

var negativeFlagWords = map[string]bool{
	"false": true, "failed": true, "failure": true, "error": true,
	"rejected": true, "denied": true, "cancelled": true, "canceled": true,
	"no": true, "0": true,
}

// flagVerdict classifies the explicit success-flag fields of a body.
// present is false when no flag key exists at all; positive wins over
// negative when different keys disagree.
func flagVerdict(fields map[string]interface{}) (positive, negative, present bool) {
	for _, key := range flagKeys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		present = true
		switch t := v.(type) {
		case bool:
			if t {
				positive = true
			} else {
				negative = true
			}
		case string:
			word := strings.ToLower(strings.TrimSpace(t))
			if positiveFlagWords[word] {
				positive = true
			} else if negativeFlagWords[word] {
				negative = true
			}
		}
	}
	if positive {
		negative = false
	}
	return positive, negative, present
}

// ErrorText returns the upstream error string carried by a body, or "".
func ErrorText(fields map[string]interface{}) string {
	for _, key := range []string{"error", "err"} {
		if v, ok := fields[key]; ok {
			if s := stringValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// hasErrorField reports whether the body carries a non-empty error marker.
func hasErrorField(fields map[string]interface{}) bool {
	for _, key := range []string{"error", "err"} {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			if t {
				return true
			}
		case string:
			if strings.TrimSpace(t) != "" {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// txIDKeys are the upstream's known spellings of a transaction id. The bare
// "id" key is deliberately absent: bill-create responses use it for the
// intent id.
var txIDKeys = []string{"txid", "txId", "tx_id", "transaction_id", "transactionId", "tx", "hash"}

// extractTxID pulls a transaction id out of a body, tolerating the
// upstream's alternate field spellings.
func extractTxID(fields map[string]interface{}) string {
	if fields == nil {
		return ""
	}
	for _, key := range txIDKeys {
		if v, ok := fields[key]; ok {
			if s := stringValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}
