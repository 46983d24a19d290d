package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/addismart/marketplace-backend/api/responses"
	"github.com/addismart/marketplace-backend/internal/payments"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/logger"
)

const maxWebhookBody = 1 << 16

type PaymentsWebhookService interface {
	HandleCallback(ctx context.Context, input payments.CallbackInput) (*models.Order, error)
}

type stripeClient interface {
	SigningSecret() string
}

type telebirrVerifier interface {
	VerifyNotification(fields map[string]string, signature string) bool
}

type callbackAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// PaymentsWebhook receives gateway confirmations for card and mobile money
// charges. Card callbacks carry a Stripe-Signature header; everything else is
// treated as a telebirr notification with an embedded HMAC. Replays are safe,
// and a non-2xx answer makes the gateway redeliver.
func PaymentsWebhook(svc PaymentsWebhookService, stripeCli stripeClient, telebirrCli telebirrVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var input payments.CallbackInput
		if sig := r.Header.Get("Stripe-Signature"); sig != "" {
			input, err = parseStripeCallback(payload, sig, stripeCli)
		} else {
			input, err = parseTelebirrCallback(payload, telebirrCli)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if input.Reference == "" {
			// event we do not act on; acknowledge so it is not redelivered
			responses.WriteSuccess(w, nil)
			return
		}

		order, err := svc.HandleCallback(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithOrderID(ctx, order.ID.String()),
				fmt.Sprintf("%s callback processed", input.Method))
		}
		responses.WriteSuccess(w, callbackAck{OrderID: order.ID.String(), Status: order.Status.String()})
	}
}

func parseStripeCallback(payload []byte, sig string, client stripeClient) (payments.CallbackInput, error) {
	if client == nil {
		return payments.CallbackInput{}, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable")
	}

	event, err := webhook.ConstructEvent(payload, sig, client.SigningSecret())
	if err != nil {
		return payments.CallbackInput{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify stripe signature")
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return payments.CallbackInput{}, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return payments.CallbackInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event")
	}
	return payments.CallbackInput{Method: enums.PaymentMethodCard, Reference: intent.ID}, nil
}

func parseTelebirrCallback(payload []byte, verifier telebirrVerifier) (payments.CallbackInput, error) {
	if verifier == nil {
		return payments.CallbackInput{}, pkgerrors.New(pkgerrors.CodeInternal, "telebirr client unavailable")
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return payments.CallbackInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification")
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		fields[key] = fmt.Sprint(value)
	}
	signature := fields["sign"]
	delete(fields, "sign")

	if !verifier.VerifyNotification(fields, signature) {
		return payments.CallbackInput{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid notification signature")
	}

	reference := strings.TrimSpace(fields["outTradeNo"])
	if reference == "" {
		return payments.CallbackInput{}, pkgerrors.New(pkgerrors.CodeValidation, "outTradeNo missing")
	}
	return payments.CallbackInput{Method: enums.PaymentMethodMobileMoney, Reference: reference}, nil
}
