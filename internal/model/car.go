package model

// CarPreferences represents structured search constraints extracted from a
// user query. Optional fields are nil when not mentioned.
type CarPreferences struct {
	Brand        *string `json:"brand,omitempty"`
	Model        *string `json:"model,omitempty"`
	BudgetMax    *int    `json:"budget_max,omitempty"`
	YearMin      *int    `json:"year_min,omitempty"`
	YearMax      *int    `json:"year_max,omitempty"`
	Transmission *string `json:"transmission,omitempty"` // automatic | manual
	Fuel         *string `json:"fuel,omitempty"`         // gasoline | diesel | hybrid | electric
	City         *string `json:"city,omitempty"`
	MileageMax   *int    `json:"mileage_max,omitempty"`
	OrderBy      *string `json:"order_by,omitempty"` // price_asc | price_desc | mileage_asc | mileage_desc | year_asc | year_desc
}

// IsEmpty reports whether no constraint was extracted at all.
func (p *CarPreferences) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Brand == nil && p.Model == nil && p.BudgetMax == nil &&
		p.YearMin == nil && p.YearMax == nil && p.Transmission == nil &&
		p.Fuel == nil && p.City == nil && p.MileageMax == nil && p.OrderBy == nil
}

// HasOnlyBrand reports whether the brand is the sole hard constraint, which
// enables the brand-only fallback retry during recommendation.
func (p *CarPreferences) HasOnlyBrand() bool {
	if p == nil || p.Brand == nil {
		return false
	}
	return p.BudgetMax == nil && p.YearMin == nil && p.YearMax == nil
}

// Car is a read-only projection of a catalog payload. Entries missing any
// required field (ID, Brand, Model, Year, Price) are rejected during
// conversion and never reach the caller.
type Car struct {
	ID           string   `json:"id"`
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Price        float64  `json:"price"` // MXN
	Mileage      int      `json:"mileage"`
	Version      *string  `json:"version,omitempty"`
	Bluetooth    *bool    `json:"bluetooth,omitempty"`
	CarPlay      *bool    `json:"car_play,omitempty"`
	Length       *float64 `json:"length,omitempty"` // mm
	Width        *float64 `json:"width,omitempty"`  // mm
	Height       *float64 `json:"height,omitempty"` // mm
	Transmission *string  `json:"transmission,omitempty"`
	Fuel         *string  `json:"fuel,omitempty"`
	City         *string  `json:"city,omitempty"`
	URL          *string  `json:"url,omitempty"`
}

// FinancingPlan is the computed amortization result. Pure value, never
// persisted.
type FinancingPlan struct {
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalInterest  float64 `json:"total_interest"`
	TotalAmount    float64 `json:"total_amount"`
	Principal      float64 `json:"principal"`
	InterestRate   float64 `json:"interest_rate"`
	TermYears      int     `json:"term_years"`
	TermMonths     int     `json:"term_months"`
}
