package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/addismart/marketplace-backend/internal/payments/telebirr"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
)

// telebirrAPI is the subset of the gateway client the rail needs, kept small
// so tests can stub it.
type telebirrAPI interface {
	CreateOrder(ctx context.Context, params telebirr.CreateOrderParams) (*telebirr.CreateOrderResult, error)
	QueryOrder(ctx context.Context, outTradeNo string) (telebirr.TradeStatus, error)
}

type mobileMoneyGateway struct {
	client telebirrAPI
}

// NewMobileMoneyGateway builds the telebirr-backed mobile-money rail.
func NewMobileMoneyGateway(client telebirrAPI) (Gateway, error) {
	if client == nil {
		return nil, errors.New("telebirr client required")
	}
	return &mobileMoneyGateway{client: client}, nil
}

func (g *mobileMoneyGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodMobileMoney
}

// Initiate opens a charge at the gateway. The out-trade number doubles as our
// payment reference so confirmation can be matched back without extra state.
func (g *mobileMoneyGateway) Initiate(ctx context.Context, order *models.Order) (*InitiateResult, error) {
	reference := fmt.Sprintf("tb-%s", order.ID)
	result, err := g.client.CreateOrder(ctx, telebirr.CreateOrderParams{
		OutTradeNo:  reference,
		AmountCents: order.TotalCents,
		Subject:     fmt.Sprintf("order %s", order.ID),
	})
	if err != nil {
		return nil, err
	}
	return &InitiateResult{
		Reference:   reference,
		RedirectURL: result.PayURL,
	}, nil
}

func (g *mobileMoneyGateway) Confirm(ctx context.Context, reference string) (enums.PaymentStatus, error) {
	status, err := g.client.QueryOrder(ctx, reference)
	if err != nil {
		return "", err
	}
	switch status {
	case telebirr.TradeSuccess:
		return enums.PaymentStatusSucceeded, nil
	case telebirr.TradeFailed, telebirr.TradeExpired:
		return enums.PaymentStatusFailed, nil
	default:
		return enums.PaymentStatusPending, nil
	}
}
