// Package refund issues refunds of destination charges after checking that
// the connected account can cover them.
package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/stripe-helpers/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Precondition failures. No refund is submitted when one of these is returned.
var (
	ErrAlreadyRefunded         = errors.New("charge already refunded")
	ErrCurrencyBalanceNotFound = errors.New("no balance in charge currency")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidAmount           = errors.New("invalid refund amount")
	ErrNoDestination           = errors.New("charge has no destination account")
)

const (
	outcomeSubmitted           = "submitted"
	outcomeAlreadyRefunded     = "already_refunded"
	outcomeInvalidAmount       = "invalid_amount"
	outcomeNoDestination       = "no_destination"
	outcomeCurrencyNotFound    = "currency_not_found"
	outcomeInsufficientBalance = "insufficient_balance"
	outcomeError               = "error"
)

var refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stripe_refunds_total",
	Help: "Total safe refund attempts by outcome",
}, []string{"outcome"})

// API is the part of the Stripe client the refund flow needs.
// *client.Client implements it.
type API interface {
	GetCharge(ctx context.Context, id string) (*client.Charge, error)
	GetBalance(ctx context.Context, account string) (*client.Balance, error)
	CreateRefund(ctx context.Context, params client.RefundParams) (*client.Refund, error)
}

// Request describes a refund.
type Request struct {
	ChargeID string

	// Amount in minor units. Zero refunds the full charge amount.
	Amount int64

	// RefundApplicationFee and ReverseTransfer default to true when nil.
	RefundApplicationFee *bool
	ReverseTransfer      *bool

	// Reason is stored as metadata["reason"] on the refund.
	Reason string

	Metadata map[string]string

	// IdempotencyKey is generated by the client when empty.
	IdempotencyKey string
}

// Service performs safe refunds.
//
// The balance check and the refund are two separate calls. A concurrent
// refund or payout on the same connected account can drain the balance in
// between; callers that need a hard guarantee must serialize refunds per
// account.
type Service struct {
	api    API
	logger zerolog.Logger
}

// NewService creates a new refund service.
func NewService(api API) *Service {
	return &Service{
		api:    api,
		logger: log.With().Str("component", "refund").Logger(),
	}
}

// SafeRefund refunds req.ChargeID if the destination account's available
// balance in the charge currency covers the amount.
func (s *Service) SafeRefund(ctx context.Context, req Request) (*client.Refund, error) {
	if req.ChargeID == "" {
		return nil, fmt.Errorf("safe refund: charge id is required")
	}
	if req.Amount < 0 {
		refundsTotal.WithLabelValues(outcomeInvalidAmount).Inc()
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}

	logger := s.logger.With().Str("charge_id", req.ChargeID).Logger()

	charge, err := s.api.GetCharge(ctx, req.ChargeID)
	if err != nil {
		refundsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("safe refund: %w", err)
	}
	if charge.Refunded {
		refundsTotal.WithLabelValues(outcomeAlreadyRefunded).Inc()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRefunded, charge.ID)
	}

	amount := req.Amount
	if amount == 0 {
		amount = charge.Amount
	}

	destination := charge.DestinationAccount()
	if destination == "" {
		refundsTotal.WithLabelValues(outcomeNoDestination).Inc()
		return nil, fmt.Errorf("%w: %s", ErrNoDestination, charge.ID)
	}

	balance, err := s.api.GetBalance(ctx, destination)
	if err != nil {
		refundsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("safe refund: %w", err)
	}

	available, ok := balance.AvailableIn(charge.Currency)
	if !ok {
		refundsTotal.WithLabelValues(outcomeCurrencyNotFound).Inc()
		return nil, fmt.Errorf("%w: %s on %s", ErrCurrencyBalanceNotFound, strings.ToLower(charge.Currency), destination)
	}

	if available.Amount < amount {
		refundsTotal.WithLabelValues(outcomeInsufficientBalance).Inc()
		logger.Warn().
			Str("account", destination).
			Int64("available", available.Amount).
			Int64("amount", amount).
			Str("currency", charge.Currency).
			Msg("Refund rejected: insufficient balance")
		return nil, fmt.Errorf("%w: %s has %d %s available, refund needs %d",
			ErrInsufficientBalance, destination, available.Amount, strings.ToLower(charge.Currency), amount)
	}

	params := client.RefundParams{
		Charge:               charge.ID,
		Amount:               amount,
		RefundApplicationFee: boolOrTrue(req.RefundApplicationFee),
		ReverseTransfer:      boolOrTrue(req.ReverseTransfer),
		Metadata:             metadata(req),
		IdempotencyKey:       req.IdempotencyKey,
	}

	refund, err := s.api.CreateRefund(ctx, params)
	if err != nil {
		refundsTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("safe refund: %w", err)
	}

	refundsTotal.WithLabelValues(outcomeSubmitted).Inc()
	logger.Info().
		Str("refund_id", refund.ID).
		Str("account", destination).
		Int64("amount", amount).
		Str("currency", charge.Currency).
		Msg("Refund submitted")

	return refund, nil
}

func boolOrTrue(v *bool) *bool {
	if v != nil {
		return client.Bool(*v)
	}
	return client.Bool(true)
}

func metadata(req Request) map[string]string {
	if len(req.Metadata) == 0 && req.Reason == "" {
		return nil
	}
	out := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		out[k] = v
	}
	if req.Reason != "" {
		out["reason"] = req.Reason
	}
	return out
}
