package billing

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"github.com/FoxUshiha/ServerPremiumSub/app/repository"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/coinpay"
)

// PaymentClient is the strategy surface the orchestrator drives. RawOutcomes
// are always returned, never errors; remote failure is data here.
type PaymentClient interface {
	Charge(ctx context.Context, from, to string, amount decimal.Decimal) coinpay.RawOutcome
	ChargeViaBill(ctx context.Context, from, to string, amount decimal.Decimal) coinpay.RawOutcome
}

// OutcomeVerifier resolves a strategy outcome into success and transaction id.
type OutcomeVerifier interface {
	Verify(ctx context.Context, out coinpay.RawOutcome) (bool, string)
}

// Orchestrator composes the payment client and the outcome verifier into one
// "attempt a charge" operation. The direct strategy runs first; the bill
// strategy runs only when the direct one failed, so an already-successful
// charge is never repeated. Every invocation appends exactly one audit row
// carrying both raw strategy payloads, success or not. A failed audit write
// is logged and swallowed: audit durability never gates the verdict.
type Orchestrator struct {
	client   PaymentClient
	verifier OutcomeVerifier
	logs     repository.PaymentLogRepository
}

// NewOrchestrator creates a charge orchestrator.
func NewOrchestrator(client PaymentClient, verifier OutcomeVerifier, logs repository.PaymentLogRepository) *Orchestrator {
	return &Orchestrator{
		client:   client,
		verifier: verifier,
		logs:     logs,
	}
}

// AttemptCharge runs the strategies, persists the audit row and returns the
// definitive verdict. It holds no entitlement state; callers decide the
// transitions.
func (o *Orchestrator) AttemptCharge(ctx context.Context, from, to string, amount decimal.Decimal, meta ChargeMeta) Verdict {
	direct := o.client.Charge(ctx, from, to, amount)
	success, txID := o.verifier.Verify(ctx, direct)

	var bill *coinpay.RawOutcome
	if !success {
		b := o.client.ChargeViaBill(ctx, from, to, amount)
		bill = &b
		success, txID = o.verifier.Verify(ctx, b)
	}

	verdict := Verdict{
		Success: success,
		TxID:    txID,
		Bundle:  marshalBundle(direct, bill),
	}
	if !success {
		verdict.Reason = failureReason(direct, bill)
	}

	rec := &models.PaymentLog{
		GuildID:     meta.GuildID,
		UserID:      meta.UserID,
		FromAccount: from,
		ToAccount:   to,
		Amount:      coinpay.TruncateAmount(amount),
		Success:     verdict.Success,
		TxID:        verdict.TxID,
		RawResponse: verdict.Bundle,
	}
	if err := o.logs.Create(rec); err != nil {
		log.Errorf("[Billing] Failed to persist audit row guild=%s user=%s: %v", meta.GuildID, meta.UserID, err)
	}

	return verdict
}

// marshalBundle serializes the raw strategy payloads for the audit row. The
// bill entry is absent when the direct strategy already succeeded.
func marshalBundle(direct coinpay.RawOutcome, bill *coinpay.RawOutcome) string {
	bundle := map[string]interface{}{
		"direct": direct,
	}
	if bill != nil {
		bundle["bill"] = *bill
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		log.Errorf("[Billing] Failed to marshal audit bundle: %v", err)
		return ""
	}
	return string(data)
}

// failureReason digs the most specific upstream error text out of the
// attempted strategies, preferring the later attempt.
func failureReason(direct coinpay.RawOutcome, bill *coinpay.RawOutcome) string {
	var outcomes []coinpay.RawOutcome
	if bill != nil {
		outcomes = append(outcomes, *bill)
	}
	outcomes = append(outcomes, direct)

	for _, out := range outcomes {
		if s := coinpay.ErrorText(out.Fields); s != "" {
			return s
		}
		if out.Err != "" {
			return out.Err
		}
		if out.HTML {
			return "upstream returned an error page"
		}
	}
	return "payment was not confirmed"
}
