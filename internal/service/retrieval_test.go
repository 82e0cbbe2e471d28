package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autoasesor/internal/config"
	"autoasesor/internal/model"
	"autoasesor/internal/normalize"
	"autoasesor/internal/repository"
)

// fakeSearcher replays canned results keyed by call order and records the
// filters each call used.
type fakeSearcher struct {
	results [][]repository.Hit
	calls   []*repository.SearchFilters
	topKs   []int
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters, collection repository.Collection) ([]repository.Hit, error) {
	f.calls = append(f.calls, filters)
	f.topKs = append(f.topKs, topK)
	if len(f.results) == 0 {
		return nil, nil
	}
	hits := f.results[0]
	f.results = f.results[1:]
	return hits, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func staticVocabulary(brands, models []string) *normalize.Vocabulary {
	return normalize.NewVocabulary(func(ctx context.Context) ([]string, []string, error) {
		return brands, models, nil
	}, zap.NewNop())
}

func newTestGateway(searcher *fakeSearcher) *Gateway {
	return NewGateway(
		searcher,
		fakeEmbedder{},
		staticVocabulary([]string{"Toyota", "Nissan"}, []string{"Corolla", "Versa"}),
		NewReranker(testRerankConfig(), zap.NewNop()),
		config.SearchConfig{CatalogTopK: 5, KnowledgeTopK: 3},
		zap.NewNop(),
	)
}

func TestRetrieveCatalog_ExactFilterHit(t *testing.T) {
	searcher := &fakeSearcher{
		results: [][]repository.Hit{
			{{ID: "1", Score: 0.9, Payload: catalogPayload("S1", "Toyota", "Corolla", 2021, 289000, 45000)}},
		},
	}
	g := newTestGateway(searcher)

	brand := "toyota"
	cars, err := g.RetrieveCatalog(context.Background(), "toyota corolla", &model.CarPreferences{Brand: &brand}, 5)
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "S1", cars[0].ID)

	// Single search with the normalized brand filter at 2x topK
	require.Len(t, searcher.calls, 1)
	require.NotNil(t, searcher.calls[0])
	require.NotNil(t, searcher.calls[0].Brand)
	assert.Equal(t, "Toyota", *searcher.calls[0].Brand)
	assert.Equal(t, 10, searcher.topKs[0])
}

func TestRetrieveCatalog_CaseInsensitiveFallback(t *testing.T) {
	searcher := &fakeSearcher{
		results: [][]repository.Hit{
			nil, // exact filter finds nothing
			{ // unfiltered pass mixes brands
				{ID: "1", Score: 0.9, Payload: catalogPayload("N1", "Nissan", "Versa", 2020, 250000, 50000)},
				{ID: "2", Score: 0.8, Payload: catalogPayload("T1", "TOYOTA", "Corolla", 2021, 289000, 45000)},
			},
		},
	}
	g := newTestGateway(searcher)

	brand := "Toyota"
	cars, err := g.RetrieveCatalog(context.Background(), "toyota", &model.CarPreferences{Brand: &brand}, 5)
	require.NoError(t, err)

	// Only the case-insensitive brand matches survive
	require.Len(t, cars, 1)
	assert.Equal(t, "T1", cars[0].ID)

	require.Len(t, searcher.calls, 2)
	assert.Nil(t, searcher.calls[1], "second pass must be unfiltered")
	assert.Equal(t, 20, searcher.topKs[1])
}

func TestRetrieveCatalog_BrandFilterDropped(t *testing.T) {
	searcher := &fakeSearcher{
		results: [][]repository.Hit{
			nil, // exact filter finds nothing
			nil, // unfiltered pass finds nothing either
			{ // brand-relaxed pass returns other brands
				{ID: "1", Score: 0.9, Payload: catalogPayload("N1", "Nissan", "Versa", 2020, 250000, 50000)},
			},
		},
	}
	g := newTestGateway(searcher)

	brand := "Toyota"
	mdl := "Corolla"
	budget := 300000
	prefs := &model.CarPreferences{Brand: &brand, Model: &mdl, BudgetMax: &budget}
	cars, err := g.RetrieveCatalog(context.Background(), "toyota corolla barato", prefs, 5)
	require.NoError(t, err)

	// No brand match anywhere: the relaxed set is kept rather than
	// returning nothing
	require.Len(t, cars, 1)
	assert.Equal(t, "N1", cars[0].ID)

	require.Len(t, searcher.calls, 3)
	third := searcher.calls[2]
	require.NotNil(t, third)
	assert.Nil(t, third.Brand, "third pass drops only the brand filter")
	require.NotNil(t, third.Model, "model filter stays in force")
	assert.Equal(t, "Corolla", *third.Model)
	require.NotNil(t, third.MaxPrice)
	assert.Equal(t, 300000.0, *third.MaxPrice)
}

func TestRetrieveCatalog_NoResults(t *testing.T) {
	searcher := &fakeSearcher{results: [][]repository.Hit{nil, nil, nil}}
	g := newTestGateway(searcher)

	brand := "Toyota"
	cars, err := g.RetrieveCatalog(context.Background(), "toyota", &model.CarPreferences{Brand: &brand}, 5)
	require.NoError(t, err)
	assert.Empty(t, cars)
}

func TestRetrieveCatalog_NoFiltersSkipsCascade(t *testing.T) {
	searcher := &fakeSearcher{results: [][]repository.Hit{nil}}
	g := newTestGateway(searcher)

	cars, err := g.RetrieveCatalog(context.Background(), "algo barato", &model.CarPreferences{}, 5)
	require.NoError(t, err)
	assert.Empty(t, cars)

	// Without a brand filter there is nothing to relax
	require.Len(t, searcher.calls, 1)
	assert.Nil(t, searcher.calls[0])
}

func TestRetrieveKnowledge(t *testing.T) {
	location := "Plaza Fortuna"
	searcher := &fakeSearcher{
		results: [][]repository.Hit{
			{
				{ID: "1", Score: 0.9, Payload: map[string]interface{}{
					"text":          "Ofrecemos garantía de tres meses con extensión opcional a un año.",
					"category":      "value_prop",
					"topic":         "garantia",
					"state":         "general",
					"location_name": location,
				}},
				{ID: "2", Score: 0.7, Payload: map[string]interface{}{
					"topic": "sedes",
				}},
			},
		},
	}
	g := newTestGateway(searcher)

	chunks, err := g.RetrieveKnowledge(context.Background(), "qué garantía ofrecen", 3)
	require.NoError(t, err)

	// Empty-text chunks are dropped, missing category/state default
	require.Len(t, chunks, 1)
	assert.Equal(t, "value_prop", chunks[0].Category)
	assert.Equal(t, "general", chunks[0].State)
	require.NotNil(t, chunks[0].LocationName)
	assert.Equal(t, location, *chunks[0].LocationName)
}

func TestRetrieveContext_CatalogSkippedWithoutTopK(t *testing.T) {
	searcher := &fakeSearcher{
		results: [][]repository.Hit{nil, nil},
	}
	g := newTestGateway(searcher)

	brand := "Toyota"
	result, err := g.RetrieveContext(context.Background(), "toyota", &model.CarPreferences{Brand: &brand}, 0, 3)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Cars)
}

func TestBuildFilters(t *testing.T) {
	t.Run("nil preferences", func(t *testing.T) {
		assert.Nil(t, buildFilters(nil))
	})

	t.Run("empty preferences", func(t *testing.T) {
		assert.Nil(t, buildFilters(&model.CarPreferences{}))
	})

	t.Run("zero budget ignored", func(t *testing.T) {
		budget := 0
		assert.Nil(t, buildFilters(&model.CarPreferences{BudgetMax: &budget}))
	})

	t.Run("all constraints mapped", func(t *testing.T) {
		brand := "Toyota"
		budget := 300000
		yearMin := 2019
		mileage := 80000
		filters := buildFilters(&model.CarPreferences{
			Brand:      &brand,
			BudgetMax:  &budget,
			YearMin:    &yearMin,
			MileageMax: &mileage,
		})
		require.NotNil(t, filters)
		assert.Equal(t, 300000.0, *filters.MaxPrice)
		assert.Equal(t, 2019, *filters.MinYear)
		assert.Equal(t, 80000, *filters.MaxMileage)
		assert.Equal(t, "Toyota", *filters.Brand)
	})
}
