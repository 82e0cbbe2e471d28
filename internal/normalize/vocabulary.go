package normalize

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LoadFunc fetches the full brand and model universe from the catalog.
type LoadFunc func(ctx context.Context) (brands, models []string, err error)

// Vocabulary caches the known brands and models for the lifetime of the
// process. The load runs once, guarded for concurrent first access; the
// cache is never invalidated automatically. Call Reset to pick up catalog
// changes.
type Vocabulary struct {
	load   LoadFunc
	logger *zap.Logger

	mu     sync.Mutex
	once   *sync.Once
	brands []string
	models []string
}

// NewVocabulary creates a vocabulary backed by the given loader.
func NewVocabulary(load LoadFunc, logger *zap.Logger) *Vocabulary {
	return &Vocabulary{
		load:   load,
		logger: logger,
		once:   new(sync.Once),
	}
}

// Brands returns the cached brand universe, loading it on first call.
// A failed load yields empty sets so matching degrades to no-op; the error
// state is logged, not retained.
func (v *Vocabulary) Brands(ctx context.Context) []string {
	v.ensure(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.brands
}

// Models returns the cached model universe, loading it on first call.
func (v *Vocabulary) Models(ctx context.Context) []string {
	v.ensure(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.models
}

// NormalizeBrand maps user brand text onto the catalog's casing, or returns
// the input unchanged when nothing matches.
func (v *Vocabulary) NormalizeBrand(ctx context.Context, input string) string {
	if match, ok := FindClosest(input, v.Brands(ctx), DefaultThreshold); ok {
		return match
	}
	return input
}

// NormalizeModel maps user model text onto the catalog's casing, or returns
// the input unchanged when nothing matches.
func (v *Vocabulary) NormalizeModel(ctx context.Context, input string) string {
	if match, ok := FindClosest(input, v.Models(ctx), DefaultThreshold); ok {
		return match
	}
	return input
}

// Reset discards the cache so the next access reloads from the catalog.
func (v *Vocabulary) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.once = new(sync.Once)
	v.brands = nil
	v.models = nil
}

func (v *Vocabulary) ensure(ctx context.Context) {
	v.mu.Lock()
	once := v.once
	v.mu.Unlock()

	once.Do(func() {
		brands, models, err := v.load(ctx)
		if err != nil {
			v.logger.Warn("vocabulary load failed, fuzzy matching disabled until reset", zap.Error(err))
			brands, models = nil, nil
		} else {
			v.logger.Info("vocabulary loaded",
				zap.Int("brands", len(brands)),
				zap.Int("models", len(models)))
		}

		v.mu.Lock()
		v.brands = brands
		v.models = models
		v.mu.Unlock()
	})
}
