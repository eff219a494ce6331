// Package subscription answers whether the billing subscription behind a
// license is still paid up.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeOracle resolves subscription status against the Stripe API. The
// license's order reference is the Stripe subscription ID.
type StripeOracle struct {
	api    *client.API
	logger *slog.Logger
}

// NewStripeOracle creates an oracle backed by the Stripe API.
func NewStripeOracle(secretKey string, logger *slog.Logger) *StripeOracle {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeOracle{api: api, logger: logger}
}

// Active reports whether the subscription is in a paying state. Licenses
// issued without a subscription reference (manual grants) are always
// considered active. A deleted subscription answers false rather than
// erroring, so the reset sweep can cancel the license.
func (o *StripeOracle) Active(ctx context.Context, orderRef string) (bool, error) {
	if orderRef == "" {
		return true, nil
	}

	sub, err := o.api.Subscriptions.Get(orderRef, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			o.logger.Warn("subscription not found", "subscription_id", orderRef)
			return false, nil
		}
		return false, fmt.Errorf("fetch subscription %s: %w", orderRef, err)
	}

	return payingStatus(sub.Status), nil
}

// payingStatus maps Stripe subscription states to "still entitled to
// credits". Past-due keeps the license alive while dunning runs.
func payingStatus(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// Static is a fixed-answer oracle for development and tests.
type Static struct {
	Answer bool
}

func (s Static) Active(ctx context.Context, orderRef string) (bool, error) {
	return s.Answer, nil
}
