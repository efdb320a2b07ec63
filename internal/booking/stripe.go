package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"cinebook/internal/config"
	"cinebook/internal/logger"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeGateway implements PaymentGateway on top of Stripe Checkout. Each
// reservation gets a hosted checkout session that expires together with the
// payment window.
type StripeGateway struct {
	client *client.API
	cfg    config.StripeConfig
	log    *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, cfg: cfg, log: log}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("invalid payment amount: %.2f", req.Amount)
	}

	// Stripe wants the smallest currency unit.
	amountInCents := int64(req.Amount*100 + 0.5)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
		ExpiresAt:  stripe.Int64(req.ExpiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(amountInCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
		Metadata: map[string]string{
			"booking_id": req.BookingID,
		},
	}
	params.Context = ctx

	sess, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for booking %s: %v", req.BookingID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("Checkout session %s created for booking %s (%.2f %s)",
		sess.ID, req.BookingID, req.Amount, req.Currency))
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
