package service

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFinancing_Validation(t *testing.T) {
	tests := []struct {
		name        string
		price       float64
		downPayment float64
		years       int
		rate        float64
	}{
		{"zero price", 0, 0, 4, 0.10},
		{"negative price", -250000, 0, 4, 0.10},
		{"negative down payment", 300000, -1, 4, 0.10},
		{"down payment equals price", 300000, 300000, 4, 0.10},
		{"down payment above price", 300000, 350000, 4, 0.10},
		{"term too short", 300000, 50000, 2, 0.10},
		{"term too long", 300000, 50000, 7, 0.10},
		{"negative rate", 300000, 50000, 4, -0.01},
		{"rate above one", 300000, 50000, 4, 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ComputeFinancing(tt.price, tt.downPayment, tt.years, tt.rate)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
			assert.Nil(t, plan)
		})
	}
}

func TestComputeFinancing_Amortization(t *testing.T) {
	price := 350000.0
	downPayment := 70000.0
	years := 4
	rate := 0.12

	plan, err := ComputeFinancing(price, downPayment, years, rate)
	require.NoError(t, err)

	// Expected payment from the standard amortization formula
	principal := price - downPayment
	monthlyRate := rate / 12
	months := float64(years * 12)
	factor := math.Pow(1+monthlyRate, months)
	expected := principal * monthlyRate * factor / (factor - 1)

	assert.InDelta(t, expected, plan.MonthlyPayment, 0.01)
	assert.Equal(t, principal, plan.Principal)
	assert.Equal(t, years, plan.TermYears)
	assert.Equal(t, years*12, plan.TermMonths)
	assert.Equal(t, rate, plan.InterestRate)

	// Totals stay internally consistent after rounding
	assert.InDelta(t, plan.MonthlyPayment*months, plan.TotalAmount, 1.0)
	assert.InDelta(t, plan.TotalAmount-plan.Principal, plan.TotalInterest, 0.02)
	assert.Greater(t, plan.TotalInterest, 0.0)
}

func TestComputeFinancing_ZeroRate(t *testing.T) {
	plan, err := ComputeFinancing(360000, 60000, 5, 0)
	require.NoError(t, err)

	// No interest: principal divides evenly across the term
	assert.Equal(t, 5000.0, plan.MonthlyPayment)
	assert.Equal(t, 0.0, plan.TotalInterest)
	assert.Equal(t, 300000.0, plan.TotalAmount)
}

func TestComputeFinancing_BoundaryTerms(t *testing.T) {
	for _, years := range []int{3, 6} {
		plan, err := ComputeFinancing(300000, 50000, years, 0.10)
		require.NoError(t, err)
		assert.Equal(t, years*12, plan.TermMonths)
	}
}
