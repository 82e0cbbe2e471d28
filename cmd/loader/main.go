package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoasesor/internal/config"
	"autoasesor/internal/llm"
	"autoasesor/internal/repository"
)

const upsertBatchSize = 50

func main() {
	catalogPath := flag.String("catalog", "", "path to the catalog CSV file")
	knowledgePath := flag.String("knowledge", "", "path to the knowledge JSON file")
	flag.Parse()

	if *catalogPath == "" && *knowledgePath == "" {
		log.Fatal("nothing to load: pass -catalog and/or -knowledge")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.OpenAI.Enabled {
		logger.Fatal("OPENAI_API_KEY is required for embedding")
	}

	db, err := repository.NewDB(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewVectorRepository(db, cfg.PostgreSQL.MaxInFlight, logger)
	llmClient := llm.NewOpenAIClient(&cfg.OpenAI, logger)

	ctx := context.Background()
	if err := repo.EnsureSchema(ctx, cfg.OpenAI.EmbeddingDimensions); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	if *catalogPath != "" {
		if err := loadCatalog(ctx, *catalogPath, repo, llmClient, logger); err != nil {
			logger.Fatal("catalog load failed", zap.Error(err))
		}
	}

	if *knowledgePath != "" {
		if err := loadKnowledge(ctx, *knowledgePath, repo, llmClient, logger); err != nil {
			logger.Fatal("knowledge load failed", zap.Error(err))
		}
	}

	logger.Info("load complete")
}

// loadCatalog reads the car CSV, embeds a text representation of each
// row, and upserts the points in batches
func loadCatalog(ctx context.Context, path string, repo *repository.VectorRepository, client *llm.OpenAIClient, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open catalog CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}

	logger.Info("catalog rows read", zap.Int("rows", len(rows)))

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = carText(row)
	}

	embeddings, err := client.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed catalog rows: %w", err)
	}

	points := make([]repository.Point, 0, upsertBatchSize)
	total := 0
	for i, row := range rows {
		points = append(points, repository.Point{
			ID:      uuid.NewString(),
			Vector:  embeddings[i],
			Payload: carPayload(row, texts[i]),
		})

		if len(points) >= upsertBatchSize {
			if err := repo.Upsert(ctx, repository.CollectionCatalog, points); err != nil {
				return err
			}
			total += len(points)
			logger.Info("catalog batch upserted", zap.Int("total", total))
			points = points[:0]
		}
	}
	if len(points) > 0 {
		if err := repo.Upsert(ctx, repository.CollectionCatalog, points); err != nil {
			return err
		}
		total += len(points)
	}

	logger.Info("catalog loaded", zap.Int("points", total))
	return nil
}

// knowledgeEntry mirrors the knowledge JSON file structure
type knowledgeEntry struct {
	Category     string  `json:"category"`
	State        string  `json:"state"`
	LocationName *string `json:"location_name"`
	Topic        string  `json:"topic"`
	Text         string  `json:"text"`
}

// loadKnowledge reads the knowledge JSON, embeds each chunk, and upserts
func loadKnowledge(ctx context.Context, path string, repo *repository.VectorRepository, client *llm.OpenAIClient, logger *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read knowledge file: %w", err)
	}

	var entries []knowledgeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to parse knowledge file: %w", err)
	}

	logger.Info("knowledge entries read", zap.Int("entries", len(entries)))

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Text
	}

	embeddings, err := client.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed knowledge entries: %w", err)
	}

	points := make([]repository.Point, 0, len(entries))
	for i, entry := range entries {
		payload := map[string]interface{}{
			"text":        entry.Text,
			"category":    entry.Category,
			"state":       entry.State,
			"topic":       entry.Topic,
			"source":      "knowledge_base",
			"chunk_index": i,
		}
		if entry.LocationName != nil {
			payload["location_name"] = *entry.LocationName
		}
		points = append(points, repository.Point{
			ID:      uuid.NewString(),
			Vector:  embeddings[i],
			Payload: payload,
		})
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := repo.Upsert(ctx, repository.CollectionKnowledge, points[start:end]); err != nil {
			return err
		}
	}

	logger.Info("knowledge loaded", zap.Int("points", len(points)))
	return nil
}

// carText builds the embedded text representation of a catalog row
func carText(row map[string]string) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Auto %s %s %s", row["make"], row["model"], row["year"]))

	if v := row["version"]; v != "" {
		parts = append(parts, "Versión: "+v)
	}
	if price, err := strconv.ParseFloat(row["price"], 64); err == nil {
		parts = append(parts, fmt.Sprintf("Precio: $%.0f MXN", price))
	}
	if km, err := strconv.Atoi(row["km"]); err == nil {
		parts = append(parts, fmt.Sprintf("Kilometraje: %d km", km))
	}

	var features []string
	if truthy(row["bluetooth"]) {
		features = append(features, "Bluetooth")
	}
	if truthy(row["car_play"]) {
		features = append(features, "Apple CarPlay")
	}
	if len(features) > 0 {
		parts = append(parts, "Características: "+strings.Join(features, ", "))
	}

	var dims []string
	if v := row["largo"]; v != "" {
		dims = append(dims, "Largo: "+v+" mm")
	}
	if v := row["ancho"]; v != "" {
		dims = append(dims, "Ancho: "+v+" mm")
	}
	if v := row["altura"]; v != "" {
		dims = append(dims, "Altura: "+v+" mm")
	}
	if len(dims) > 0 {
		parts = append(parts, "Dimensiones: "+strings.Join(dims, ", "))
	}

	if v := row["stock_id"]; v != "" {
		parts = append(parts, "ID de stock: "+v)
	}

	return strings.Join(parts, ". ")
}

// carPayload converts a catalog row into the typed search payload
func carPayload(row map[string]string, text string) map[string]interface{} {
	payload := map[string]interface{}{
		"stock_id":  row["stock_id"],
		"make":      row["make"],
		"model":     row["model"],
		"version":   row["version"],
		"bluetooth": truthy(row["bluetooth"]),
		"car_play":  truthy(row["car_play"]),
		"text":      text,
	}

	if year, err := strconv.Atoi(row["year"]); err == nil {
		payload["year"] = year
	}
	if price, err := strconv.ParseFloat(row["price"], 64); err == nil {
		payload["price"] = price
	}
	if km, err := strconv.Atoi(row["km"]); err == nil {
		payload["km"] = km
	}
	if v, err := strconv.ParseFloat(row["largo"], 64); err == nil {
		payload["largo"] = v
	}
	if v, err := strconv.ParseFloat(row["ancho"], 64); err == nil {
		payload["ancho"] = v
	}
	if v, err := strconv.ParseFloat(row["altura"], 64); err == nil {
		payload["altura"] = v
	}

	return payload
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sí", "si", "yes", "true", "1":
		return true
	}
	return false
}
