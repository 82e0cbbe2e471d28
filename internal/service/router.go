package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"autoasesor/internal/config"
	"autoasesor/internal/llm"
	"autoasesor/internal/model"
)

// systemPrompt frames every synthesis call. It pins the assistant to the
// retrieved context and the fixed financing terms.
const systemPrompt = `Eres un asesor comercial de una plataforma de compra y venta de autos seminuevos en México.

Tu objetivo es ayudar a los usuarios a encontrar autos del catálogo y entender los servicios de la plataforma de forma clara, cercana y humana, como lo haría una persona real en un chat de ventas.

REGLAS ESTRICTAS (NO NEGOCIABLES)

1. Usa únicamente la información que se te proporcione en el contexto (catálogo y contenidos de la empresa).

2. No inventes autos, precios, versiones, características, ubicaciones ni políticas.

3. Si un dato no está disponible en el catálogo, dilo explícitamente.

4. Si el usuario pide un modelo que no existe, sugiere únicamente opciones reales del catálogo.

5. Nunca prometas información financiera fuera de:
   - precio del auto
   - enganche
   - tasa anual fija del 10%
   - plazo de 3 a 6 años

6. Si no puedes responder con certeza, dilo de forma clara y amable.

FINANCIAMIENTO

- Calcula mensualidades solo con precio, enganche, tasa anual del 10% y plazo (3-6 años).

- Presenta los montos como aproximados.

- No menciones bancos, score, CAT, seguros ni comisiones.

ESTILO DE CONVERSACIÓN

- Sé amable, claro y natural.

- Evita lenguaje robótico o corporativo.

- Explica como una persona real.

- Haz preguntas breves para avanzar la conversación.

- Mantén respuestas concisas (máximo 2-3 párrafos para chat/WhatsApp).

FORMATO

- Cuando recomiendes autos, incluye solo:
  marca, modelo, año, precio, kilometraje, versión y características disponibles (solo si están en el contexto).

- Termina normalmente con una pregunta para continuar el flujo.`

// User-facing fixed messages. Kept polite and free of internals.
const (
	msgGenericError    = "Lo siento, ocurrió un error al procesar tu consulta. ¿Podrías intentar de nuevo?"
	msgNoKnowledge     = "Lo siento, no encontré información relevante sobre ese tema. ¿Podrías reformular tu pregunta?"
	msgNoPrice         = "No se pudo determinar el precio del auto. Por favor, proporciona el precio del auto para calcular el financiamiento."
	noResultsBrandTmpl = "No encontré autos de %s en nuestro catálogo actual. ¿Te gustaría especificar algún modelo, año, o presupuesto? Esto me ayudaría a encontrar mejores opciones para ti."
)

// brandOnlyFallbackFetch is the unfiltered fetch size for the brand-only
// retry in the recommend handler.
const brandOnlyFallbackFetch = 10

// Router classifies a query and dispatches it to the matching handler.
// Stateless across queries; continuity comes only from the context block
// the facade prepends.
type Router struct {
	llm        llm.Client
	gateway    *Gateway
	classifier *Classifier
	extractor  *Extractor
	cache      *ReplyCache
	searchCfg  config.SearchConfig
	financeCfg config.FinancingConfig
	logger     *zap.Logger
}

// NewRouter creates the intent router
func NewRouter(client llm.Client, gateway *Gateway, classifier *Classifier, extractor *Extractor, cache *ReplyCache, searchCfg config.SearchConfig, financeCfg config.FinancingConfig, logger *zap.Logger) *Router {
	return &Router{
		llm:        client,
		gateway:    gateway,
		classifier: classifier,
		extractor:  extractor,
		cache:      cache,
		searchCfg:  searchCfg,
		financeCfg: financeCfg,
		logger:     logger,
	}
}

// Route runs the full pipeline for one query and returns the response
// text. Handler failures surface as a generic apology, never an error.
func (r *Router) Route(ctx context.Context, query string) string {
	decision := r.classifier.Classify(ctx, query)

	var prefs *model.CarPreferences
	if decision.Intent == model.IntentRecommend {
		prefs = r.extractor.ExtractPreferences(ctx, query)
	}
	decision.Preferences = prefs

	response, err := r.dispatch(ctx, decision)
	if err != nil {
		r.logger.Error("handler dispatch failed",
			zap.String("intent", string(decision.Intent)),
			zap.Error(err))
		return msgGenericError
	}
	return response
}

func (r *Router) dispatch(ctx context.Context, decision model.RoutingDecision) (string, error) {
	r.logger.Info("dispatching query",
		zap.String("intent", string(decision.Intent)),
		zap.String("complexity", string(decision.Complexity)))

	switch decision.Intent {
	case model.IntentValueProp:
		return r.handleValueProp(ctx, decision)
	case model.IntentRecommend:
		return r.handleRecommend(ctx, decision)
	case model.IntentFinance:
		return r.handleFinance(ctx, decision)
	default:
		return r.handleOther(ctx, decision)
	}
}

// handleValueProp answers company questions strictly from retrieved
// knowledge chunks. Empty retrieval gets the fixed no-information message.
func (r *Router) handleValueProp(ctx context.Context, decision model.RoutingDecision) (string, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, "value_prop", decision.Query); ok {
			return cached, nil
		}
	}

	chunks, err := r.gateway.RetrieveKnowledge(ctx, decision.Query, r.searchCfg.KnowledgeTopK)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return msgNoKnowledge, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	contextText := strings.Join(texts, "\n\n")

	prompt := fmt.Sprintf(`%s

## Contexto sobre la empresa (usa SOLO esta información):

%s

## Pregunta del usuario:

%s

## Instrucciones:

Responde la pregunta del usuario usando ÚNICAMENTE la información del contexto proporcionado.
Si la información no está en el contexto, di explícitamente que no tienes esa información.
Responde de forma amigable, concisa y natural (máximo 2-3 párrafos).
Termina con una pregunta para continuar la conversación.

Respuesta:`, systemPrompt, contextText, decision.Query)

	response, err := r.llm.Complete(ctx, prompt, 0.3, 400)
	if err != nil {
		return "", err
	}
	response = strings.TrimSpace(response)

	if r.cache != nil {
		r.cache.Set(ctx, "value_prop", decision.Query, response)
	}
	return response, nil
}

// handleRecommend retrieves and reranks catalog cars, with a brand-only
// fallback retry when strict preferences empty the result set
func (r *Router) handleRecommend(ctx context.Context, decision model.RoutingDecision) (string, error) {
	prefs := decision.Preferences
	if prefs == nil {
		prefs = &model.CarPreferences{}
	}

	cars, err := r.gateway.RetrieveCatalog(ctx, decision.Query, prefs, r.searchCfg.CatalogTopK)
	if err != nil {
		return "", err
	}

	if len(cars) == 0 && prefs.HasOnlyBrand() {
		fallback, err := r.gateway.RetrieveCatalog(ctx, decision.Query, &model.CarPreferences{}, brandOnlyFallbackFetch)
		if err != nil {
			return "", err
		}
		want := strings.ToLower(strings.TrimSpace(*prefs.Brand))
		for _, car := range fallback {
			if strings.ToLower(strings.TrimSpace(car.Brand)) == want {
				cars = append(cars, car)
			}
		}
		if len(cars) > r.searchCfg.CatalogTopK {
			cars = cars[:r.searchCfg.CatalogTopK]
		}
	}

	if len(cars) == 0 {
		subject := "esas características"
		if prefs.Brand != nil && *prefs.Brand != "" {
			subject = *prefs.Brand
		}
		return fmt.Sprintf(noResultsBrandTmpl, subject), nil
	}

	if len(cars) > r.searchCfg.CatalogTopK {
		cars = cars[:r.searchCfg.CatalogTopK]
	}

	prompt := fmt.Sprintf(`%s

## Autos encontrados en el catálogo (recomienda SOLO estos):

%s

## Consulta del usuario:

%s

## Instrucciones:

Presenta estos autos de forma amigable y natural. Menciona TODA la información disponible:
- Marca, modelo, año, versión
- Precio y kilometraje
- Características: Bluetooth, Apple CarPlay (cuando estén disponibles)
- Dimensiones: largo, ancho, altura (cuando estén disponibles)

Si un auto tiene Bluetooth o CarPlay, MENCIONALO explícitamente en tu respuesta.
Si el usuario pregunta sobre dimensiones o características específicas, usa la información proporcionada.
Si el usuario mencionó una marca/modelo específica y no aparece en los resultados, menciona que encontraste opciones similares.
Termina con una pregunta para continuar (ej: "¿Te gustaría más información sobre alguno de estos autos o calcular el financiamiento?").

Respuesta:`, systemPrompt, formatCarList(cars), decision.Query)

	response, err := r.llm.Complete(ctx, prompt, 0.5, 300)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// handleFinance resolves a price from context or the query text, clamps
// the term, computes the plan, and has the LLM present it
func (r *Router) handleFinance(ctx context.Context, decision model.RoutingDecision) (string, error) {
	var price float64
	downPayment := 0.0
	years := r.financeCfg.MinYears

	// Price resolution cascade: referenced car from prior context first,
	// then a price stated in the current query
	if strings.Contains(decision.Query, model.ChatContextHeader) {
		if carInfo := r.extractor.ExtractCarFromContext(ctx, decision.Query); carInfo != nil && carInfo.BudgetMax != nil {
			price = float64(*carInfo.BudgetMax)
		}
	}

	if price == 0 {
		if extracted, ok := r.extractor.ExtractPrice(ctx, decision.Query); ok {
			price = extracted
		}
	}

	if price == 0 {
		return msgNoPrice, nil
	}

	if years < r.financeCfg.MinYears {
		years = r.financeCfg.MinYears
	} else if years > r.financeCfg.MaxYears {
		years = r.financeCfg.MaxYears
	}

	plan, err := ComputeFinancing(price, downPayment, years, r.financeCfg.AnnualRate)
	if err != nil {
		return "", err
	}

	userQuery := decision.Query
	if idx := strings.Index(userQuery, model.CurrentQueryHeader+"\n"); idx >= 0 {
		userQuery = userQuery[idx+len(model.CurrentQueryHeader)+1:]
	}

	prompt := fmt.Sprintf(`%s

## Plan de financiamiento calculado:

- Pago mensual: $%s MXN
- Plazo: %d años (%d meses)
- Interés total: $%s MXN
- Total a pagar: $%s MXN
- Tasa de interés: %.1f%% anual
- Precio del auto: $%s MXN
- Enganche: $%s MXN

## Consulta del usuario:

%s

## Instrucciones:

Presenta el plan de financiamiento de forma clara y amigable para el auto mencionado anteriormente.
Si el usuario dijo "ese auto" o similar, confirma que es para el auto que mencionamos antes.
Menciona que los montos son aproximados.
No menciones bancos, score, CAT, seguros ni comisiones.
Termina con una pregunta para continuar.

Respuesta:`,
		systemPrompt,
		formatMoney(plan.MonthlyPayment),
		plan.TermYears, plan.TermMonths,
		formatMoney(plan.TotalInterest),
		formatMoney(plan.TotalAmount),
		plan.InterestRate*100,
		formatMoney(price),
		formatMoney(downPayment),
		userQuery)

	response, err := r.llm.Complete(ctx, prompt, 0.4, 250)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// handleOther is the plain conversational path, no retrieval
func (r *Router) handleOther(ctx context.Context, decision model.RoutingDecision) (string, error) {
	prompt := fmt.Sprintf(`%s

## Consulta del usuario:

%s

## Instrucciones:

Responde de manera amigable y profesional. Si la consulta está relacionada con autos o la plataforma, proporciona información útil.
Si no está relacionada, responde de manera educada indicando que puedes ayudar con preguntas sobre la empresa, el catálogo de autos, o financiamiento.
Responde en español mexicano, de manera concisa (máximo 2-3 párrafos).

Respuesta:`, systemPrompt, decision.Query)

	response, err := r.llm.Complete(ctx, prompt, 0.7, 300)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// formatCarList renders the retrieved cars as the numbered context block
// the synthesis prompt consumes
func formatCarList(cars []model.Car) string {
	lines := make([]string, 0, len(cars))
	for i, car := range cars {
		desc := fmt.Sprintf("%d. %s %s %d", i+1, car.Brand, car.Model, car.Year)
		if car.Version != nil {
			desc += fmt.Sprintf(" (%s)", *car.Version)
		}
		desc += fmt.Sprintf(" - $%s MXN", formatThousands(int64(car.Price+0.5)))
		if car.Mileage > 0 {
			desc += fmt.Sprintf(" - %s km", formatThousands(int64(car.Mileage)))
		}

		var features []string
		if car.Bluetooth != nil && *car.Bluetooth {
			features = append(features, "Bluetooth")
		}
		if car.CarPlay != nil && *car.CarPlay {
			features = append(features, "Apple CarPlay")
		}
		if len(features) > 0 {
			desc += " - Características: " + strings.Join(features, ", ")
		}

		var dims []string
		if car.Length != nil {
			dims = append(dims, fmt.Sprintf("Largo: %.0f mm", *car.Length))
		}
		if car.Width != nil {
			dims = append(dims, fmt.Sprintf("Ancho: %.0f mm", *car.Width))
		}
		if car.Height != nil {
			dims = append(dims, fmt.Sprintf("Altura: %.0f mm", *car.Height))
		}
		if len(dims) > 0 {
			desc += " - Dimensiones: " + strings.Join(dims, ", ")
		}

		lines = append(lines, desc)
	}
	return strings.Join(lines, "\n")
}

// formatMoney renders an amount with thousands separators and two
// decimals, e.g. 292092.48 -> "292,092.48"
func formatMoney(v float64) string {
	whole := int64(v)
	frac := v - float64(whole)
	s := formatThousands(whole)
	return fmt.Sprintf("%s.%02d", s, int64(frac*100+0.5))
}

// formatThousands inserts comma separators into a non-negative integer
func formatThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
