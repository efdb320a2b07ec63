package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookError carries enough context to split what we tell Stripe from
// what we log.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string // safe to expose to clients
	InternalError string // detailed error for logs only
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook verifies and dispatches a Stripe webhook request.
// checkout.session.completed confirms the booking; an expired or failed
// session fails it. A LatePaymentError from the success path is logged as
// an alert but acknowledged to Stripe, since redelivery cannot fix it.
func (s *Service) HandleStripeWebhook(r *http.Request, webhookSecret string) error {
	if webhookSecret == "" {
		s.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), webhookSecret, opts)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "checkout.session.completed":
		bookingID, werr := s.bookingIDFromEvent(event)
		if werr != nil {
			return werr
		}
		if err := s.OnPaymentSucceeded(r.Context(), bookingID); err != nil {
			var late *LatePaymentError
			if errors.As(err, &late) {
				// Already alerted; retrying the delivery cannot help.
				return nil
			}
			s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to confirm booking %s: %v", bookingID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("Failed to confirm booking %s: %v", bookingID, err),
				OriginalErr:   err,
			}
		}

	case "checkout.session.expired", "checkout.session.async_payment_failed":
		bookingID, werr := s.bookingIDFromEvent(event)
		if werr != nil {
			return werr
		}
		if err := s.OnPaymentTimeoutOrFailure(r.Context(), bookingID); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to fail booking %s: %v", bookingID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment failure",
				InternalError: fmt.Sprintf("Failed to fail booking %s: %v", bookingID, err),
				OriginalErr:   err,
			}
		}

	default:
		s.logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

func (s *Service) bookingIDFromEvent(event stripe.Event) (string, *WebhookError) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
		return "", &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}
	bookingID, ok := sess.Metadata["booking_id"]
	if !ok || bookingID == "" {
		s.logger.Error("WEBHOOK", "Checkout session has no booking_id in metadata")
		return "", &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: "Checkout session has no booking_id in metadata",
		}
	}
	return bookingID, nil
}
