package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusDelivered, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	require.True(t, OrderStatusDelivered.IsTerminal())
	require.True(t, OrderStatusCancelled.IsTerminal())
	require.False(t, OrderStatusPending.IsTerminal())
	require.False(t, OrderStatusPaid.IsTerminal())
	require.False(t, OrderStatusShipped.IsTerminal())
}

func TestDeliveryStatusTransitions(t *testing.T) {
	cases := []struct {
		from    DeliveryStatus
		to      DeliveryStatus
		allowed bool
	}{
		{DeliveryStatusAssigned, DeliveryStatusPickedUp, true},
		{DeliveryStatusAssigned, DeliveryStatusFailed, true},
		{DeliveryStatusAssigned, DeliveryStatusInTransit, false},
		{DeliveryStatusAssigned, DeliveryStatusDelivered, false},
		{DeliveryStatusPickedUp, DeliveryStatusInTransit, true},
		{DeliveryStatusPickedUp, DeliveryStatusFailed, true},
		{DeliveryStatusPickedUp, DeliveryStatusDelivered, false},
		{DeliveryStatusInTransit, DeliveryStatusDelivered, true},
		{DeliveryStatusInTransit, DeliveryStatusFailed, true},
		{DeliveryStatusDelivered, DeliveryStatusFailed, false},
		{DeliveryStatusFailed, DeliveryStatusAssigned, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestParsers(t *testing.T) {
	status, err := ParseOrderStatus("paid")
	require.NoError(t, err)
	require.Equal(t, OrderStatusPaid, status)

	_, err = ParseOrderStatus("unknown")
	require.Error(t, err)

	method, err := ParsePaymentMethod("mobile_money")
	require.NoError(t, err)
	require.Equal(t, PaymentMethodMobileMoney, method)

	role, err := ParseMemberRole("agent")
	require.NoError(t, err)
	require.Equal(t, MemberRoleAgent, role)

	_, err = ParseDeliveryStatus("teleported")
	require.Error(t, err)
}
