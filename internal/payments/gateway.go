package payments

import (
	"context"
	"fmt"

	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
)

// InitiateResult is the gateway handle for a freshly opened charge. Order is
// set when the rail settles at initiation and carries the updated order.
type InitiateResult struct {
	Reference    string
	RedirectURL  string
	ClientSecret string
	Order        *models.Order
}

// Gateway abstracts one payment rail. Initiate opens a charge for the order's
// frozen total; Confirm reports the rail-side outcome for a reference. Confirm
// never mutates order state, it only answers.
type Gateway interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, order *models.Order) (*InitiateResult, error)
	Confirm(ctx context.Context, reference string) (enums.PaymentStatus, error)
}

// Registry selects a gateway by payment method.
type Registry struct {
	byMethod map[enums.PaymentMethod]Gateway
}

// NewRegistry indexes the provided gateways. Duplicate methods are rejected.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	byMethod := make(map[enums.PaymentMethod]Gateway, len(gateways))
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		method := gw.Method()
		if _, exists := byMethod[method]; exists {
			return nil, fmt.Errorf("duplicate gateway for method %s", method)
		}
		byMethod[method] = gw
	}
	return &Registry{byMethod: byMethod}, nil
}

// For returns the gateway registered for the method.
func (r *Registry) For(method enums.PaymentMethod) (Gateway, error) {
	gw, ok := r.byMethod[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported payment method %s", method))
	}
	return gw, nil
}
