package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/env"
)

// Billing holds the renewal engine settings: the upstream payment API,
// the platform master account, cycle and sweep timing, and the courtesy
// delays between outbound calls.
type Billing struct {
	APIBaseURL    string
	MasterAccount string
	DefaultPrice  decimal.Decimal
	Cycle         time.Duration
	SweepInterval time.Duration
	ChargeDelay   time.Duration
	NotifyDelay   time.Duration
	HTTPTimeout   time.Duration
}

// rawBilling is the env-shaped form validated before conversion.
type rawBilling struct {
	APIBaseURL           string `validate:"required,url"`
	MasterAccount        string `validate:"required"`
	DefaultPrice         string `validate:"required"`
	CycleDays            int    `validate:"gt=0"`
	SweepIntervalSeconds int    `validate:"gt=0"`
	ChargeDelayMS        int    `validate:"gte=0"`
	NotifyDelayMS        int    `validate:"gte=0"`
	TimeoutSeconds       int    `validate:"gt=0"`
}

// LoadBilling reads the billing configuration from the environment.
func LoadBilling() (*Billing, error) {
	raw := rawBilling{
		APIBaseURL:    env.GetEnv("COINPAY_BASE_URL", ""),
		MasterAccount: env.GetEnv("MASTER_ACCOUNT", ""),
		DefaultPrice:  env.GetEnv("DEFAULT_PRICE", "0.05"),
	}

	var err error
	if raw.CycleDays, err = envInt("BILLING_CYCLE_DAYS", 30); err != nil {
		return nil, err
	}
	if raw.SweepIntervalSeconds, err = envInt("SWEEP_INTERVAL_SECONDS", 60); err != nil {
		return nil, err
	}
	if raw.ChargeDelayMS, err = envInt("CHARGE_DELAY_MS", 1500); err != nil {
		return nil, err
	}
	if raw.NotifyDelayMS, err = envInt("NOTIFY_DELAY_MS", 1200); err != nil {
		return nil, err
	}
	if raw.TimeoutSeconds, err = envInt("COINPAY_TIMEOUT_SECONDS", 15); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(raw); err != nil {
		return nil, fmt.Errorf("billing config invalid: %w", err)
	}

	price, err := decimal.NewFromString(raw.DefaultPrice)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_PRICE is not a decimal: %w", err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("DEFAULT_PRICE must be positive, got %s", price)
	}
	if price.Exponent() < -8 {
		return nil, fmt.Errorf("DEFAULT_PRICE supports at most 8 fractional digits, got %s", price)
	}

	return &Billing{
		APIBaseURL:    raw.APIBaseURL,
		MasterAccount: raw.MasterAccount,
		DefaultPrice:  price,
		Cycle:         time.Duration(raw.CycleDays) * 24 * time.Hour,
		SweepInterval: time.Duration(raw.SweepIntervalSeconds) * time.Second,
		ChargeDelay:   time.Duration(raw.ChargeDelayMS) * time.Millisecond,
		NotifyDelay:   time.Duration(raw.NotifyDelayMS) * time.Millisecond,
		HTTPTimeout:   time.Duration(raw.TimeoutSeconds) * time.Second,
	}, nil
}

func envInt(key string, def int) (int, error) {
	v := env.GetEnv(key, strconv.Itoa(def))
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, nil
}
