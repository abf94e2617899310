package withdrawals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/collabhq/collabpay/internal/circuitbreaker"
	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/provider"
)

// MobileMoney pays out to a mobile wallet through an aggregator's
// business-to-customer API.
type MobileMoney struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	minimum money.Cents
	maximum money.Cents
	pct     float64
	fixed   money.Cents
}

// breakerKey groups all aggregator calls under one circuit.
const breakerKey = "mobilemoney.b2c"

// NewMobileMoney creates the mobile money channel.
func NewMobileMoney(baseURL, apiKey string, min, max money.Cents, pct float64, fixed money.Cents) *MobileMoney {
	return &MobileMoney{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
		minimum: min,
		maximum: max,
		pct:     pct,
		fixed:   fixed,
	}
}

func (m *MobileMoney) Method() Method { return MethodMobileMoney }
func (m *MobileMoney) Bounds() (money.Cents, money.Cents) { return m.minimum, m.maximum }
func (m *MobileMoney) Fees() (float64, money.Cents) { return m.pct, m.fixed }

type b2cRequest struct {
	Phone     string `json:"phone"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

type b2cResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Payout sends the net amount to the creator's wallet. A run of aggregator
// outages opens the circuit so queued withdrawals fail fast and stay
// retryable instead of tying up workers on a dead endpoint.
func (m *MobileMoney) Payout(ctx context.Context, req PayoutRequest) (string, error) {
	if !m.breaker.Allow(breakerKey) {
		return "", provider.New(provider.KindUnreachable, "mobilemoney.b2c",
			"aggregator circuit open", nil)
	}

	ref, err := m.payout(ctx, req)
	if pe, ok := provider.AsError(err); ok && (pe.Kind == provider.KindUnreachable || pe.Kind == provider.KindRateLimited) {
		m.breaker.RecordFailure(breakerKey)
	} else {
		// Declines and validation errors mean the aggregator answered.
		m.breaker.RecordSuccess(breakerKey)
	}
	return ref, err
}

func (m *MobileMoney) payout(ctx context.Context, req PayoutRequest) (string, error) {
	phone := req.Details["phone"]
	if phone == "" {
		return "", provider.New(provider.KindMalformed, "mobilemoney.b2c",
			"missing phone in withdrawal details", nil)
	}

	body, err := json.Marshal(b2cRequest{
		Phone:     phone,
		Amount:    req.Net.Format(),
		Reference: req.WithdrawalID,
	})
	if err != nil {
		return "", provider.New(provider.KindGeneric, "mobilemoney.b2c", "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/b2c/payments", bytes.NewReader(body))
	if err != nil {
		return "", provider.New(provider.KindGeneric, "mobilemoney.b2c", "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", provider.New(provider.KindUnreachable, "mobilemoney.b2c", err.Error(), err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", provider.New(provider.KindAuth, "mobilemoney.b2c",
			fmt.Sprintf("status %d: %s", resp.StatusCode, payload), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", provider.New(provider.KindRateLimited, "mobilemoney.b2c",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return "", provider.New(provider.KindUnreachable, "mobilemoney.b2c",
			fmt.Sprintf("status %d: %s", resp.StatusCode, payload), nil)
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return "", provider.New(provider.KindMalformed, "mobilemoney.b2c",
			fmt.Sprintf("status %d: %s", resp.StatusCode, payload), nil)
	default:
		return "", provider.New(provider.KindGeneric, "mobilemoney.b2c",
			fmt.Sprintf("status %d: %s", resp.StatusCode, payload), nil)
	}

	var parsed b2cResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", provider.New(provider.KindGeneric, "mobilemoney.b2c", "decode response", err)
	}
	if parsed.Status == "rejected" || parsed.Status == "failed" {
		return "", provider.New(provider.KindDeclined, "mobilemoney.b2c", parsed.Message, nil)
	}
	if parsed.TransactionID == "" {
		return "", provider.New(provider.KindGeneric, "mobilemoney.b2c", "response missing transaction_id", nil)
	}
	return parsed.TransactionID, nil
}
