package model

// Intent is the classified purpose of a user query.
type Intent string

const (
	IntentValueProp Intent = "value_prop"
	IntentRecommend Intent = "recommend"
	IntentFinance   Intent = "finance"
	IntentOther     Intent = "other"
)

// Valid reports whether the intent is one of the four known values.
func (i Intent) Valid() bool {
	switch i {
	case IntentValueProp, IntentRecommend, IntentFinance, IntentOther:
		return true
	}
	return false
}

// Complexity is the deterministic simple/complex tag computed by the
// heuristic, independent of the LLM classification.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// RoutingDecision is produced once per query by the classification step and
// consumed exactly once by dispatch. Never mutated after creation.
type RoutingDecision struct {
	Intent      Intent          `json:"intent"`
	Confidence  float64         `json:"confidence"`
	Complexity  Complexity      `json:"complexity"`
	Preferences *CarPreferences `json:"preferences,omitempty"`
	Query       string          `json:"query"`
}
