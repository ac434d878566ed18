package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrder_ComputeTotal(t *testing.T) {
	o := &Order{
		Items: []OrderItem{
			{ProductID: "prod-1", Price: 10_000, Quantity: 2},
			{ProductID: "prod-2", Price: 3_500, Quantity: 3},
		},
	}
	assert.Equal(t, int64(30_500), o.ComputeTotal())
}

func TestOrder_ComputeTotal_Empty(t *testing.T) {
	assert.Zero(t, (&Order{}).ComputeTotal())
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses() {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("shipped"))
	assert.False(t, IsValidStatus(""))
}

func TestOrder_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    string
		to      string
		allowed bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusConfirmed, OrderStatusDelivered, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
		{"unknown", OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		o := &Order{Status: tt.from}
		assert.Equal(t, tt.allowed, o.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
