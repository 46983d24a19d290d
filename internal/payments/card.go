package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/addismart/marketplace-backend/pkg/stripe"

	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
)

// StripePaymentIntentClient exposes the subset of Stripe operations the card
// rail requires.
type StripePaymentIntentClient interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClientWrapper struct{}

// NewStripePaymentIntentClient wraps the initialized Stripe client so the
// card rail can be tested.
func NewStripePaymentIntentClient(api *pkgstripe.Client) StripePaymentIntentClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeClientWrapper) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Get(id, params)
}

type cardGateway struct {
	client StripePaymentIntentClient
}

// NewCardGateway builds the Stripe-backed card rail.
func NewCardGateway(client StripePaymentIntentClient) (Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe payment intent client required")
	}
	return &cardGateway{client: client}, nil
}

func (g *cardGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodCard
}

func (g *cardGateway) Initiate(ctx context.Context, order *models.Order) (*InitiateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(order.TotalCents)),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", order.ID.String())

	pi, err := g.client.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return &InitiateResult{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (g *cardGateway) Confirm(ctx context.Context, reference string) (enums.PaymentStatus, error) {
	pi, err := g.client.Get(ctx, reference, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("fetch payment intent %s", reference))
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusSucceeded, nil
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentStatusFailed, nil
	default:
		return enums.PaymentStatusPending, nil
	}
}
