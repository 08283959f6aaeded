package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"post-insight-pipeline/internal/config"
	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/internal/store"
	"post-insight-pipeline/models"
)

// loader ingests a labeled dataset file (CSV or XLSX) into the document
// store. Every row becomes a raw document, ready for the enrichment pipeline.
func main() {
	var (
		filePath   = flag.String("file", "", "path to the dataset file (.csv or .xlsx)")
		source     = flag.String("source", "dataset", "source tag stored on each document")
		docType    = flag.String("type", "", "document type override; defaults to the dataset's category column")
		maxRecords = flag.Int("limit", 0, "maximum rows to ingest (0 = all)")
	)
	flag.Parse()

	if *filePath == "" {
		log.Fatal("missing required -file flag")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	posts := store.NewMongoPostStore(mongoClient.Database(cfg.DBName).Collection(cfg.Collection))

	rows, err := readRows(*filePath)
	if err != nil {
		log.Fatal("Failed to read dataset:", err)
	}
	if len(rows) < 2 {
		log.Fatal("dataset has no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.text < 0 {
		log.Fatal("could not find a text column in the dataset header")
	}

	now := time.Now().UTC()
	labels := map[string]int{}
	var batch []models.Document
	inserted := 0

	data := rows[1:]
	if *maxRecords > 0 && len(data) > *maxRecords {
		data = data[:*maxRecords]
	}

	for _, row := range data {
		text := cell(row, cols.text)
		if strings.TrimSpace(text) == "" {
			continue
		}

		doc := models.Document{
			ID:        uuid.New().String(),
			RawText:   text,
			Label:     cell(row, cols.label),
			Type:      *docType,
			Source:    *source,
			CreatedAt: now,
			State:     models.StateRaw,
		}
		if doc.Type == "" {
			doc.Type = cell(row, cols.category)
		}
		labels[doc.Label]++

		batch = append(batch, doc)
		if int64(len(batch)) >= cfg.BatchSize {
			inserted += flush(posts, batch, cfg.StoreTimeout)
			batch = batch[:0]
		}
	}
	inserted += flush(posts, batch, cfg.StoreTimeout)

	fmt.Printf("Inserted %d documents from %s\n", inserted, filepath.Base(*filePath))
	fmt.Println("Label distribution:")
	for label, count := range labels {
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Printf("  %-20s %d\n", label, count)
	}
}

func flush(posts store.PostStore, batch []models.Document, timeout time.Duration) int {
	if len(batch) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := posts.InsertMany(ctx, batch)
	if err != nil {
		logger.Error("insert batch failed", "inserted", n, "batch", len(batch), "error", err.Error())
	}
	return n
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}
	return f.GetRows(sheets[0])
}

type columns struct {
	text     int
	label    int
	category int
}

// detectColumns finds the relevant columns by common dataset header names.
func detectColumns(header []string) columns {
	cols := columns{text: -1, label: -1, category: -1}

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text", "tweet", "post", "content", "message", "comment":
			if cols.text < 0 {
				cols.text = i
			}
		case "label", "class", "sentiment", "annotation":
			if cols.label < 0 {
				cols.label = i
			}
		case "category", "type", "topic":
			if cols.category < 0 {
				cols.category = i
			}
		}
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
