package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"autoasesor/internal/config"
	"autoasesor/internal/model"
	"autoasesor/internal/repository"
)

// Reranker re-scores raw retrieval hits with business-rule bonuses on top
// of the similarity score.
type Reranker struct {
	cfg    config.RerankConfig
	logger *zap.Logger
}

// NewReranker creates a reranker with the configured bonus policy
func NewReranker(cfg config.RerankConfig, logger *zap.Logger) *Reranker {
	return &Reranker{cfg: cfg, logger: logger}
}

// Rerank converts hits to Cars, scores them, and returns them ordered by
// descending score. Ties keep retrieval order. Hits whose payload fails
// required-field validation are dropped, not deprioritized.
func (r *Reranker) Rerank(hits []repository.Hit, prefs *model.CarPreferences) []model.Car {
	type scored struct {
		score float64
		car   model.Car
	}

	items := make([]scored, 0, len(hits))
	for _, hit := range hits {
		car, ok := CarFromPayload(hit.Payload)
		if !ok {
			r.logger.Warn("dropping catalog hit with incomplete payload", zap.String("id", hit.ID))
			continue
		}

		score := hit.Score

		if prefs != nil && prefs.Brand != nil && strings.EqualFold(car.Brand, *prefs.Brand) {
			score += r.cfg.BrandBonus
		}
		if prefs != nil && prefs.Model != nil && strings.EqualFold(car.Model, *prefs.Model) {
			score += r.cfg.ModelBonus
		}

		if prefs != nil && prefs.BudgetMax != nil && *prefs.BudgetMax > 0 {
			ratio := car.Price / float64(*prefs.BudgetMax)
			if ratio <= 1.0 {
				switch {
				case ratio >= 0.7 && ratio <= 0.95:
					score += r.cfg.BudgetFitHigh
				case ratio > 0.95:
					score += r.cfg.BudgetFitClose
				default:
					score += r.cfg.BudgetFitLow
				}
			}
		}

		if car.Year != 0 {
			score += r.cfg.RecencyWeight * float64(car.Year-r.cfg.RecencyBaseYear) / r.cfg.RecencySpan
		}
		if car.Mileage != 0 {
			mileageScore := 1.0 - math.Min(float64(car.Mileage)/r.cfg.MileageCeiling, 1.0)
			score += r.cfg.MileageWeight * mileageScore
		}

		items = append(items, scored{score: score, car: car})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	cars := make([]model.Car, len(items))
	for i, it := range items {
		cars[i] = it.car
	}
	return cars
}

// CarFromPayload validates and converts a catalog payload into a Car.
// Missing id, brand, model, year or price rejects the entry.
func CarFromPayload(payload map[string]interface{}) (model.Car, bool) {
	stockID := strings.TrimSpace(payloadString(payload, "stock_id"))
	brand := strings.TrimSpace(payloadString(payload, "make"))
	mdl := strings.TrimSpace(payloadString(payload, "model"))
	year := payloadInt(payload, "year")
	price := payloadFloat(payload, "price")

	if stockID == "" || brand == "" || mdl == "" || year == 0 || price == 0 {
		return model.Car{}, false
	}

	car := model.Car{
		ID:      stockID,
		Brand:   brand,
		Model:   mdl,
		Year:    year,
		Price:   price,
		Mileage: payloadInt(payload, "km"),
	}

	if v := strings.TrimSpace(payloadString(payload, "version")); v != "" {
		car.Version = &v
	}
	if b, ok := payload["bluetooth"].(bool); ok && b {
		car.Bluetooth = &b
	}
	if b, ok := payload["car_play"].(bool); ok && b {
		car.CarPlay = &b
	}
	if v := payloadFloat(payload, "largo"); v != 0 {
		car.Length = &v
	}
	if v := payloadFloat(payload, "ancho"); v != 0 {
		car.Width = &v
	}
	if v := payloadFloat(payload, "altura"); v != 0 {
		car.Height = &v
	}
	if v := strings.TrimSpace(payloadString(payload, "transmission")); v != "" {
		car.Transmission = &v
	}
	if v := strings.TrimSpace(payloadString(payload, "fuel")); v != "" {
		car.Fuel = &v
	}
	if v := strings.TrimSpace(payloadString(payload, "city")); v != "" {
		car.City = &v
	}

	if v := strings.TrimSpace(payloadString(payload, "url")); v != "" {
		car.URL = &v
	}

	return car, true
}

func payloadString(payload map[string]interface{}, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

func payloadInt(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func payloadFloat(payload map[string]interface{}, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
