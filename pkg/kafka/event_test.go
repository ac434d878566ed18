package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCreatedPayload struct {
	OrderID string `json:"order_id"`
	Total   int64  `json:"total"`
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent("smartshop.order.created", "order-1", "order", "storefront", orderCreatedPayload{
		OrderID: "order-1",
		Total:   25_000,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "smartshop.order.created", ev.EventType)
	assert.Equal(t, "order-1", ev.AggregateID)
	assert.Equal(t, "order", ev.AggregateType)
	assert.Equal(t, "storefront", ev.Source)
	assert.Equal(t, 1, ev.Version)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	ev, err := NewEvent("smartshop.cart.updated", "user-1", "cart", "storefront", orderCreatedPayload{
		OrderID: "order-2",
		Total:   1_500,
	})
	require.NoError(t, err)
	ev.WithCorrelationID("corr-1")

	data, err := ev.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)

	var payload orderCreatedPayload
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, "order-2", payload.OrderID)
	assert.Equal(t, int64(1_500), payload.Total)
}
