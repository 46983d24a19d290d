package deliveries

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/addismart/marketplace-backend/api/middleware"
	"github.com/addismart/marketplace-backend/api/responses"
	"github.com/addismart/marketplace-backend/api/validators"
	internaldelivery "github.com/addismart/marketplace-backend/internal/delivery"
	"github.com/addismart/marketplace-backend/pkg/db/models"
	"github.com/addismart/marketplace-backend/pkg/enums"
	pkgerrors "github.com/addismart/marketplace-backend/pkg/errors"
	"github.com/addismart/marketplace-backend/pkg/logger"
)

type assignRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid4"`
	AgentID string `json:"agent_id" validate:"required,uuid4"`
}

type updateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Code   string  `json:"code,omitempty"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type deliveryResponse struct {
	ID          uuid.UUID            `json:"id"`
	OrderID     uuid.UUID            `json:"order_id"`
	AgentID     uuid.UUID            `json:"agent_id"`
	Status      enums.DeliveryStatus `json:"status"`
	Notes       *string              `json:"notes,omitempty"`
	AssignedAt  time.Time            `json:"assigned_at"`
	PickedUpAt  *time.Time           `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty"`
	FailedAt    *time.Time           `json:"failed_at,omitempty"`
}

type deliveryListResponse struct {
	Deliveries []deliveryResponse `json:"deliveries"`
}

func toDeliveryResponse(row *models.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:          row.ID,
		OrderID:     row.OrderID,
		AgentID:     row.AgentID,
		Status:      row.Status,
		Notes:       row.Notes,
		AssignedAt:  row.AssignedAt,
		PickedUpAt:  row.PickedUpAt,
		DeliveredAt: row.DeliveredAt,
		FailedAt:    row.FailedAt,
	}
}

// Assign dispatches a paid order to a delivery agent. Admin only.
func Assign(svc internaldelivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		assignedBy, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload assignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}
		agentID, err := uuid.Parse(payload.AgentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid agent id"))
			return
		}

		row, err := svc.Assign(r.Context(), internaldelivery.AssignInput{
			OrderID:    orderID,
			AgentID:    agentID,
			AssignedBy: assignedBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toDeliveryResponse(row))
	}
}

// UpdateStatus advances the agent's own delivery along the handoff chain.
// Moving to delivered requires the buyer's confirmation code.
func UpdateStatus(svc internaldelivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		agentID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryID, err := parseDeliveryID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseDeliveryStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery status"))
			return
		}

		row, err := svc.UpdateStatus(r.Context(), internaldelivery.UpdateStatusInput{
			DeliveryID: deliveryID,
			AgentID:    agentID,
			NewStatus:  status,
			Code:       payload.Code,
			Notes:      payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDeliveryResponse(row))
	}
}

// ListAssigned returns the agent's active deliveries, oldest assignment first.
func ListAssigned(svc internaldelivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}

		agentID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListAssigned(r.Context(), agentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := deliveryListResponse{Deliveries: make([]deliveryResponse, 0, len(rows))}
		for i := range rows {
			out.Deliveries = append(out.Deliveries, toDeliveryResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return parsed, nil
}

func parseDeliveryID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "deliveryId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery id")
	}
	return parsed, nil
}
