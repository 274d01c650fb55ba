package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionHappyPath(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusNew, OrderStatusConfirmed))
	assert.True(t, CanTransition(OrderStatusConfirmed, OrderStatusInAssembly))
	assert.True(t, CanTransition(OrderStatusInAssembly, OrderStatusAssembled))
	assert.True(t, CanTransition(OrderStatusAssembled, OrderStatusOnDelivery))
	assert.True(t, CanTransition(OrderStatusAssembled, OrderStatusCompleted))
	assert.True(t, CanTransition(OrderStatusOnDelivery, OrderStatusDelivered))
	assert.True(t, CanTransition(OrderStatusDelivered, OrderStatusCompleted))
}

func TestCanTransitionRejectsSkips(t *testing.T) {
	assert.False(t, CanTransition(OrderStatusNew, OrderStatusDelivered))
	assert.False(t, CanTransition(OrderStatusNew, OrderStatusCompleted))
	assert.False(t, CanTransition(OrderStatusConfirmed, OrderStatusAssembled))
	assert.False(t, CanTransition(OrderStatusAssembled, OrderStatusDelivered))
}

func TestCancelledReachableFromEveryNonTerminalState(t *testing.T) {
	nonTerminal := []OrderStatus{
		OrderStatusNew, OrderStatusConfirmed, OrderStatusInAssembly,
		OrderStatusAssembled, OrderStatusOnDelivery, OrderStatusDelivered,
	}
	for _, from := range nonTerminal {
		assert.True(t, CanTransition(from, OrderStatusCancelled), "from %s", from)
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	all := []OrderStatus{
		OrderStatusNew, OrderStatusConfirmed, OrderStatusInAssembly,
		OrderStatusAssembled, OrderStatusOnDelivery, OrderStatusDelivered,
		OrderStatusCompleted, OrderStatusCancelled,
	}
	for _, to := range all {
		assert.False(t, CanTransition(OrderStatusCompleted, to), "completed -> %s", to)
		assert.False(t, CanTransition(OrderStatusCancelled, to), "cancelled -> %s", to)
	}
}

func TestInvalidTransitionErrorNamesAllowedSet(t *testing.T) {
	err := &InvalidTransitionError{
		From:    OrderStatusNew,
		To:      OrderStatusDelivered,
		Allowed: AllowedTransitionsFrom(OrderStatusNew),
	}
	msg := err.Error()
	assert.Contains(t, msg, "new")
	assert.Contains(t, msg, "delivered")
	assert.Contains(t, msg, "confirmed")
	assert.Contains(t, msg, "cancelled")
}
