package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"autoasesor/internal/llm"
	"autoasesor/internal/model"
)

// Bounds for sanity-checking extracted values. Prices outside the plausible
// MXN range for a used car are treated as extraction noise.
const (
	minPlausiblePrice = 100000
	maxPlausiblePrice = 10000000
	minPlausibleYear  = 1900
	maxPlausibleYear  = 2030
)

var digitsRe = regexp.MustCompile(`\d+`)

// Extractor pulls structured car preferences and prices out of free text
// with LLM-backed extraction. Its output is validated before use.
type Extractor struct {
	llm    llm.Client
	logger *zap.Logger
}

// NewExtractor creates a preference extractor
func NewExtractor(client llm.Client, logger *zap.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

// ExtractPreferences derives search constraints from a recommendation
// query. Extraction failure returns nil preferences, not an error.
func (e *Extractor) ExtractPreferences(ctx context.Context, query string) *model.CarPreferences {
	prompt := fmt.Sprintf(`Extrae las preferencias de auto de esta consulta: "%s"

Extrae la siguiente información en JSON:
- brand (marca): Si el usuario menciona una marca (ej: "kia", "toyota", "honda"), extrae el nombre de la marca en su forma más común (ej: "Kia", "Toyota", "Honda").
- model (modelo): Modelo específico si se menciona
- budget_max: Presupuesto máximo si se menciona (número entero)
- year_min/year_max: Rango de años si se menciona
- transmission: Tipo de transmisión si se menciona (automatic o manual)
- fuel: Tipo de combustible si se menciona (gasoline, diesel, hybrid o electric)
- city: Ciudad si se menciona
- mileage_max: Kilometraje máximo si se menciona

IMPORTANTE:
- Si el usuario solo menciona una marca (ej: "dame opciones de kia"), extrae la marca normalizada (ej: "Kia").
- Para marcas comunes, usa la capitalización estándar: Kia, Toyota, Honda, Nissan, Volkswagen, Ford, Chevrolet, etc.
- Si algún campo no está mencionado, omítelo del JSON.`, query)

	var prefs model.CarPreferences
	if err := e.llm.CompleteStructured(ctx, prompt, &prefs, 0.2, 300); err != nil {
		e.logger.Warn("preference extraction failed, continuing without preferences", zap.Error(err))
		return nil
	}

	sanitizePreferences(&prefs)
	if prefs.IsEmpty() {
		return nil
	}
	return &prefs
}

// ExtractCarFromContext resolves a referenced car ("ese auto") from the
// prior-conversation block of a context-bearing query. budget_max carries
// the referenced car's price. Returns nil when nothing usable is found.
func (e *Extractor) ExtractCarFromContext(ctx context.Context, queryWithContext string) *model.CarPreferences {
	if !strings.Contains(queryWithContext, model.ChatContextHeader) {
		return nil
	}

	contextText, currentQuery := splitContextQuery(queryWithContext)
	if contextText == "" {
		return nil
	}

	prompt := fmt.Sprintf(`Analiza el contexto de conversaciones previas y la consulta actual para extraer información sobre el auto mencionado.

## Contexto de Conversaciones Previas:

%s

## Consulta Actual:

%s

La consulta actual hace referencia a un auto mencionado anteriormente (usa palabras como "ese", "ese auto", "el anterior", etc.).

Extrae en JSON la siguiente información del contexto:
- brand: Marca del auto mencionado (si está en el contexto)
- model: Modelo del auto mencionado (si está en el contexto)
- budget_max: Precio del auto mencionado en MXN (si está en el contexto, como número entero). Este campo debe contener el precio EXACTO del auto que se mencionó anteriormente.
- year_min o year_max: Año del auto (si está en el contexto, usa el mismo valor para ambos si solo hay un año)

Solo extrae información que esté EXPLÍCITAMENTE mencionada en el contexto previo; omite los campos que falten.`, contextText, currentQuery)

	var prefs model.CarPreferences
	if err := e.llm.CompleteStructured(ctx, prompt, &prefs, 0.1, 200); err != nil {
		e.logger.Warn("context car extraction failed", zap.Error(err))
		return nil
	}

	if prefs.BudgetMax != nil {
		price := *prefs.BudgetMax
		if price < minPlausiblePrice || price > maxPlausiblePrice {
			prefs.BudgetMax = nil
		}
	}
	sanitizePreferences(&prefs)

	if prefs.IsEmpty() {
		return nil
	}
	return &prefs
}

// ExtractPrice pulls a price stated in the current query text, parsed
// digits-only after an LLM pass
func (e *Extractor) ExtractPrice(ctx context.Context, query string) (float64, bool) {
	prompt := fmt.Sprintf(`De la siguiente consulta, extrae el precio del auto en MXN (solo el número, sin comas ni puntos).

Consulta: "%s"

Si hay un precio mencionado, responde SOLO con el número. Si no hay precio, responde "NO_PRICE".`, query)

	text, err := e.llm.Complete(ctx, prompt, 0.1, 50)
	if err != nil {
		e.logger.Warn("price extraction failed", zap.Error(err))
		return 0, false
	}

	text = strings.TrimSpace(text)
	if text == "" || text == "NO_PRICE" {
		return 0, false
	}

	cleaned := strings.NewReplacer(",", "", ".", "").Replace(text)
	digits := digitsRe.FindAllString(cleaned, -1)
	if len(digits) == 0 {
		return 0, false
	}

	price, err := strconv.ParseFloat(strings.Join(digits, ""), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// sanitizePreferences drops values the model returned out of range
func sanitizePreferences(prefs *model.CarPreferences) {
	if prefs == nil {
		return
	}
	if prefs.BudgetMax != nil && *prefs.BudgetMax < 0 {
		prefs.BudgetMax = nil
	}
	if prefs.MileageMax != nil && *prefs.MileageMax < 0 {
		prefs.MileageMax = nil
	}
	if prefs.YearMin != nil && (*prefs.YearMin < minPlausibleYear || *prefs.YearMin > maxPlausibleYear) {
		prefs.YearMin = nil
	}
	if prefs.YearMax != nil && (*prefs.YearMax < minPlausibleYear || *prefs.YearMax > maxPlausibleYear) {
		prefs.YearMax = nil
	}
	if prefs.YearMin != nil && prefs.YearMax != nil && *prefs.YearMin > *prefs.YearMax {
		prefs.YearMin, prefs.YearMax = prefs.YearMax, prefs.YearMin
	}
	if prefs.Transmission != nil {
		t := strings.ToLower(strings.TrimSpace(*prefs.Transmission))
		if t != "automatic" && t != "manual" {
			prefs.Transmission = nil
		} else {
			prefs.Transmission = &t
		}
	}
	if prefs.Fuel != nil {
		f := strings.ToLower(strings.TrimSpace(*prefs.Fuel))
		switch f {
		case "gasoline", "diesel", "hybrid", "electric":
			prefs.Fuel = &f
		default:
			prefs.Fuel = nil
		}
	}
}

// splitContextQuery separates the prior-context block from the current
// query in a context-bearing prompt
func splitContextQuery(queryWithContext string) (contextText, currentQuery string) {
	parts := strings.SplitN(queryWithContext, model.ChatContextHeader+"\n", 2)
	if len(parts) < 2 {
		return "", queryWithContext
	}

	rest := parts[1]
	if idx := strings.Index(rest, model.CurrentQueryHeader+"\n"); idx >= 0 {
		contextText = strings.TrimSpace(rest[:idx])
		currentQuery = strings.TrimSpace(rest[idx+len(model.CurrentQueryHeader)+1:])
		return contextText, currentQuery
	}

	return strings.TrimSpace(rest), queryWithContext
}
