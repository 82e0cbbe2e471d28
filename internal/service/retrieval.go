package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"autoasesor/internal/config"
	"autoasesor/internal/model"
	"autoasesor/internal/normalize"
	"autoasesor/internal/repository"
)

// defaultCatalogQuery seeds the embedding when the query text is empty.
const defaultCatalogQuery = "auto seminuevo"

// VectorSearcher is the store surface the gateway needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters, collection repository.Collection) ([]repository.Hit, error)
}

// Embedder produces query embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeChunk is one retrieved company-information snippet.
type KnowledgeChunk struct {
	Text         string  `json:"text"`
	Category     string  `json:"category"`
	State        string  `json:"state"`
	LocationName *string `json:"location_name,omitempty"`
	Topic        string  `json:"topic"`
}

// RetrievalResult carries both retrieval outcomes for one query.
type RetrievalResult struct {
	Cars      []model.Car
	Knowledge []KnowledgeChunk
}

// Gateway retrieves catalog cars and knowledge chunks from the vector
// store, normalizing preferences and relaxing filters when strict
// filtering returns nothing.
type Gateway struct {
	searcher VectorSearcher
	embedder Embedder
	vocab    *normalize.Vocabulary
	reranker *Reranker
	cfg      config.SearchConfig
	logger   *zap.Logger
}

// NewGateway creates a retrieval gateway
func NewGateway(searcher VectorSearcher, embedder Embedder, vocab *normalize.Vocabulary, reranker *Reranker, cfg config.SearchConfig, logger *zap.Logger) *Gateway {
	return &Gateway{
		searcher: searcher,
		embedder: embedder,
		vocab:    vocab,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// RetrieveContext fetches catalog and knowledge context for a query.
// Catalog retrieval runs only when preferences are given; both legs run
// in parallel. A failed leg degrades to an empty result.
func (g *Gateway) RetrieveContext(ctx context.Context, query string, prefs *model.CarPreferences, catalogTopK, knowledgeTopK int) (*RetrievalResult, error) {
	result := &RetrievalResult{}

	eg, egCtx := errgroup.WithContext(ctx)

	if prefs != nil && catalogTopK > 0 {
		eg.Go(func() error {
			cars, err := g.RetrieveCatalog(egCtx, query, prefs, catalogTopK)
			if err != nil {
				g.logger.Error("catalog retrieval failed", zap.Error(err))
				return nil
			}
			result.Cars = cars
			return nil
		})
	}

	if knowledgeTopK > 0 {
		eg.Go(func() error {
			chunks, err := g.RetrieveKnowledge(egCtx, query, knowledgeTopK)
			if err != nil {
				g.logger.Error("knowledge retrieval failed", zap.Error(err))
				return nil
			}
			result.Knowledge = chunks
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// RetrieveCatalog normalizes brand/model, builds filters, searches with
// the relaxation cascade, and returns reranked cars capped at topK.
func (g *Gateway) RetrieveCatalog(ctx context.Context, query string, prefs *model.CarPreferences, topK int) ([]model.Car, error) {
	normalized := g.normalizePreferences(ctx, prefs)
	filters := buildFilters(normalized)

	text := query
	if strings.TrimSpace(text) == "" {
		text = defaultCatalogQuery
	}
	vector, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	hits, err := g.searchWithCascade(ctx, vector, topK, filters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	cars := g.reranker.Rerank(hits, normalized)
	if len(cars) > topK {
		cars = cars[:topK]
	}
	return cars, nil
}

// searchWithCascade runs the filter-relaxation cascade:
//  1. full filters at 2x topK;
//  2. zero hits with a brand filter: unfiltered search at 4x topK,
//     locally brand-matched case-insensitively;
//  3. still zero: drop only the brand filter at 2x topK, locally
//     brand-filter, and keep the unmatched set when that empties it.
func (g *Gateway) searchWithCascade(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters) ([]repository.Hit, error) {
	hits, err := g.searcher.Search(ctx, vector, topK*2, filters, repository.CollectionCatalog)
	if err != nil {
		return nil, err
	}

	if len(hits) > 0 || filters == nil || filters.Brand == nil {
		return hits, nil
	}

	brand := *filters.Brand
	g.logger.Info("no results with exact brand filter, trying case-insensitive search",
		zap.String("brand", brand))

	unfiltered, err := g.searcher.Search(ctx, vector, topK*4, nil, repository.CollectionCatalog)
	if err != nil {
		return nil, err
	}

	matched := filterByBrand(unfiltered, brand)
	if len(matched) > 0 {
		g.logger.Info("case-insensitive brand match succeeded", zap.Int("hits", len(matched)))
		return matched, nil
	}

	relaxed, err := g.searcher.Search(ctx, vector, topK*2, filters.WithoutBrand(), repository.CollectionCatalog)
	if err != nil {
		return nil, err
	}
	if len(relaxed) == 0 {
		return nil, nil
	}

	// Some results beat none: fall back to the unmatched set when the
	// local brand filter empties it
	if matched := filterByBrand(relaxed, brand); len(matched) > 0 {
		return matched, nil
	}
	return relaxed, nil
}

// RetrieveKnowledge runs a plain semantic search over the knowledge
// collection
func (g *Gateway) RetrieveKnowledge(ctx context.Context, query string, topK int) ([]KnowledgeChunk, error) {
	vector, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := g.searcher.Search(ctx, vector, topK, nil, repository.CollectionKnowledge)
	if err != nil {
		return nil, err
	}

	chunks := make([]KnowledgeChunk, 0, len(hits))
	for _, hit := range hits {
		chunk := KnowledgeChunk{
			Text:     payloadString(hit.Payload, "text"),
			Category: payloadString(hit.Payload, "category"),
			State:    payloadString(hit.Payload, "state"),
			Topic:    payloadString(hit.Payload, "topic"),
		}
		if chunk.Category == "" {
			chunk.Category = "general"
		}
		if chunk.State == "" {
			chunk.State = "general"
		}
		if name := payloadString(hit.Payload, "location_name"); name != "" {
			chunk.LocationName = &name
		}
		if chunk.Text != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// normalizePreferences maps user brand/model spellings onto catalog
// vocabulary. Unmatched values pass through unchanged.
func (g *Gateway) normalizePreferences(ctx context.Context, prefs *model.CarPreferences) *model.CarPreferences {
	if prefs == nil {
		return nil
	}
	cp := *prefs
	if cp.Brand != nil {
		brand := g.vocab.NormalizeBrand(ctx, *cp.Brand)
		cp.Brand = &brand
	}
	if cp.Model != nil {
		mdl := g.vocab.NormalizeModel(ctx, *cp.Model)
		cp.Model = &mdl
	}
	return &cp
}

func buildFilters(prefs *model.CarPreferences) *repository.SearchFilters {
	if prefs == nil {
		return nil
	}

	filters := &repository.SearchFilters{}
	if prefs.BudgetMax != nil && *prefs.BudgetMax > 0 {
		budget := float64(*prefs.BudgetMax)
		filters.MaxPrice = &budget
	}
	if prefs.YearMin != nil {
		filters.MinYear = prefs.YearMin
	}
	if prefs.YearMax != nil {
		filters.MaxYear = prefs.YearMax
	}
	if prefs.MileageMax != nil && *prefs.MileageMax > 0 {
		filters.MaxMileage = prefs.MileageMax
	}
	if prefs.Brand != nil && strings.TrimSpace(*prefs.Brand) != "" {
		brand := strings.TrimSpace(*prefs.Brand)
		filters.Brand = &brand
	}
	if prefs.Model != nil && strings.TrimSpace(*prefs.Model) != "" {
		mdl := strings.TrimSpace(*prefs.Model)
		filters.Model = &mdl
	}

	if filters.IsZero() {
		return nil
	}
	return filters
}

func filterByBrand(hits []repository.Hit, brand string) []repository.Hit {
	want := strings.ToLower(strings.TrimSpace(brand))
	var matched []repository.Hit
	for _, hit := range hits {
		got := strings.ToLower(strings.TrimSpace(payloadString(hit.Payload, "make")))
		if got == want {
			matched = append(matched, hit)
		}
	}
	return matched
}
