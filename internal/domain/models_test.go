package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		name  string
		total float64
		paid  float64
		want  string
	}{
		{"sin pagos", 100, 0, PagoPendiente},
		{"pago parcial", 100, 40, PagoParcial},
		{"pago completo", 100, 100, PagoPagado},
		{"sobrepago", 100, 120, PagoPagado},
		{"dentro de la tolerancia", 100, 99.9995, PagoPagado},
		{"fuera de la tolerancia", 100, 99.99, PagoParcial},
		{"total cero sin pagos", 0, 0, PagoPagado},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DerivePaymentStatus(tc.total, tc.paid))
		})
	}
}

func TestMergeWeightedAverage(t *testing.T) {
	qty, cost := MergeWeightedAverage(0, 0, 10, 5)
	assert.Equal(t, 10, qty)
	assert.InDelta(t, 5.0, cost, 1e-9)

	// 10 @ 5 merged with 10 @ 15 averages to 10.
	qty, cost = MergeWeightedAverage(10, 5, 10, 15)
	assert.Equal(t, 20, qty)
	assert.InDelta(t, 10.0, cost, 1e-9)

	// Merge order over a sequence must equal the global average.
	batches := []struct {
		qty  int
		cost float64
	}{
		{3, 7.5}, {12, 11.25}, {5, 4.8}, {20, 9.99},
	}
	totalQty := 0
	totalValue := 0.0
	qty, cost = 0, 0
	for _, b := range batches {
		qty, cost = MergeWeightedAverage(qty, cost, b.qty, b.cost)
		totalQty += b.qty
		totalValue += float64(b.qty) * b.cost
	}
	assert.Equal(t, totalQty, qty)
	assert.InDelta(t, totalValue/float64(totalQty), cost, 1e-9)
}

func TestMergeWeightedAverageZeroQuantityResetsCost(t *testing.T) {
	qty, cost := MergeWeightedAverage(5, 12, -5, 12)
	assert.Equal(t, 0, qty)
	assert.Zero(t, cost)
	assert.False(t, math.IsNaN(cost))
}

func TestLineCostInLocal(t *testing.T) {
	assert.InDelta(t, 50.0, LineCostInLocal(50, MonedaLocal, 6.96), 1e-9)
	assert.InDelta(t, 348.0, LineCostInLocal(50, MonedaExtranjera, 6.96), 1e-9)
	// Unknown currencies pass through untouched.
	assert.InDelta(t, 50.0, LineCostInLocal(50, "EUR", 6.96), 1e-9)
}
