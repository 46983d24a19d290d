package payments

import (
	"context"
	"fmt"

	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
)

// cashGateway handles cash on delivery. There is no external rail: the
// reference is minted locally and confirmation always succeeds, since the
// money changes hands at the doorstep.
type cashGateway struct{}

// NewCashGateway builds the cash-on-delivery rail.
func NewCashGateway() Gateway {
	return cashGateway{}
}

func (cashGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodCashOnDelivery
}

func (cashGateway) Initiate(_ context.Context, order *models.Order) (*InitiateResult, error) {
	return &InitiateResult{Reference: fmt.Sprintf("cod-%s", order.ID)}, nil
}

func (cashGateway) Confirm(_ context.Context, _ string) (enums.PaymentStatus, error) {
	return enums.PaymentStatusSucceeded, nil
}
