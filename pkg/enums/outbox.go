package enums

// OutboxEventType names the domain events carried through the outbox.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order.created"
	EventOrderPaid         OutboxEventType = "order.paid"
	EventOrderShipped      OutboxEventType = "order.shipped"
	EventOrderDelivered    OutboxEventType = "order.delivered"
	EventOrderCancelled    OutboxEventType = "order.cancelled"
	EventDeliveryAssigned  OutboxEventType = "delivery.assigned"
	EventDeliveryPickedUp  OutboxEventType = "delivery.picked_up"
	EventDeliveryInTransit OutboxEventType = "delivery.in_transit"
	EventDeliveryDelivered OutboxEventType = "delivery.delivered"
	EventDeliveryFailed    OutboxEventType = "delivery.failed"
)

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateDelivery OutboxAggregateType = "delivery"
)

// String implements fmt.Stringer.
func (o OutboxAggregateType) String() string {
	return string(o)
}
