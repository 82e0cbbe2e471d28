package service

import (
	"errors"
	"fmt"
	"math"

	"autoasesor/internal/model"
)

// ErrInvalidInput marks validation failures on user-supplied parameters.
var ErrInvalidInput = errors.New("invalid input")

// ComputeFinancing computes an amortized payment plan. Inputs outside the
// allowed ranges return ErrInvalidInput with no partial result.
func ComputeFinancing(price, downPayment float64, years int, annualRate float64) (*model.FinancingPlan, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if downPayment < 0 {
		return nil, fmt.Errorf("%w: down payment cannot be negative", ErrInvalidInput)
	}
	if downPayment >= price {
		return nil, fmt.Errorf("%w: down payment must be less than price", ErrInvalidInput)
	}
	if years < 3 || years > 6 {
		return nil, fmt.Errorf("%w: financing term must be between 3 and 6 years", ErrInvalidInput)
	}
	if annualRate < 0 || annualRate > 1 {
		return nil, fmt.Errorf("%w: interest rate must be between 0 and 1", ErrInvalidInput)
	}

	principal := price - downPayment
	monthlyRate := annualRate / 12
	months := years * 12

	var monthlyPayment float64
	if monthlyRate == 0 {
		monthlyPayment = principal / float64(months)
	} else {
		factor := math.Pow(1+monthlyRate, float64(months))
		monthlyPayment = principal * monthlyRate * factor / (factor - 1)
	}

	totalAmount := monthlyPayment * float64(months)
	totalInterest := totalAmount - principal

	// Round only the final outputs, never intermediates
	return &model.FinancingPlan{
		MonthlyPayment: round2(monthlyPayment),
		TotalInterest:  round2(totalInterest),
		TotalAmount:    round2(totalAmount),
		Principal:      round2(principal),
		InterestRate:   annualRate,
		TermYears:      years,
		TermMonths:     months,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
