package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"post-insight-pipeline/internal/config"
	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/services"
)

// postsMapping mirrors the flattened document body: enrichment scores as
// numerics, labels as keywords, text fields analyzed for search.
const postsMapping = `{
	"mappings": {
		"properties": {
			"post_id":              {"type": "keyword"},
			"title":                {"type": "text"},
			"content":              {"type": "text"},
			"content_processed":    {"type": "text"},
			"label":                {"type": "keyword"},
			"category":             {"type": "keyword"},
			"language":             {"type": "keyword"},
			"language_confidence":  {"type": "float"},
			"sentiment":            {"type": "keyword"},
			"sentiment_score":      {"type": "float"},
			"sentiment_confidence": {"type": "float"},
			"sentiment_source":     {"type": "keyword"},
			"lexicon_polarity":     {"type": "float"},
			"lexicon_subjectivity": {"type": "float"},
			"lexicon_label":        {"type": "keyword"},
			"vader_compound":       {"type": "float"},
			"vader_positive":       {"type": "float"},
			"vader_neutral":        {"type": "float"},
			"vader_negative":       {"type": "float"},
			"text_length":          {"type": "integer"},
			"word_count":           {"type": "integer"}
		}
	}
}`

// ElasticIndex implements services.SearchIndex on Elasticsearch. Writes go
// through a rate limiter and a circuit breaker so a struggling cluster sheds
// load instead of absorbing a retry storm. Every call runs under the
// configured timeout so a hung connection cannot stall a sync run.
type ElasticIndex struct {
	client      *elasticsearch.Client
	indexName   string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	timeout     time.Duration
}

func NewElasticIndex(cfg *config.Config) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ElasticURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Elasticsearch",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	// Burst of one tenth of the per-second budget keeps upserts smooth.
	limit := rate.Limit(cfg.IndexRateLimit)
	burst := int(cfg.IndexRateLimit / 10)
	if burst < 1 {
		burst = 1
	}

	return &ElasticIndex{
		client:      client,
		indexName:   cfg.IndexName,
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(limit, burst),
		timeout:     cfg.IndexTimeout,
	}, nil
}

func (ei *ElasticIndex) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ei.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ei.timeout)
}

// EnsureIndex verifies the cluster is reachable and creates the index with
// its mapping when missing. Any failure here is fatal for a sync run.
func (ei *ElasticIndex) EnsureIndex(ctx context.Context) error {
	ctx, cancel := ei.callCtx(ctx)
	defer cancel()

	info, err := ei.client.Info(ei.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch unreachable: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("elasticsearch info returned %s", info.Status())
	}

	exists, err := ei.client.Indices.Exists(
		[]string{ei.indexName},
		ei.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	created, err := ei.client.Indices.Create(
		ei.indexName,
		ei.client.Indices.Create.WithContext(ctx),
		ei.client.Indices.Create.WithBody(strings.NewReader(postsMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", ei.indexName, err)
	}
	defer created.Body.Close()
	if created.IsError() {
		return fmt.Errorf("index creation returned %s", created.Status())
	}

	logger.Info("created search index", "index", ei.indexName)
	return nil
}

// Upsert writes the document body under its id, replacing any prior version.
func (ei *ElasticIndex) Upsert(ctx context.Context, id string, body map[string]interface{}) error {
	if err := ei.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	_, err = ei.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := ei.callCtx(ctx)
		defer cancel()

		req := esapi.IndexRequest{
			Index:      ei.indexName,
			DocumentID: id,
			Body:       strings.NewReader(string(payload)),
		}

		res, err := req.Do(reqCtx, ei.client)
		if err != nil {
			return nil, services.Transient(err)
		}
		defer res.Body.Close()

		if res.IsError() {
			msg, _ := io.ReadAll(res.Body)
			err := fmt.Errorf("index request for %s returned %s: %s", id, res.Status(), string(msg))
			if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
				return nil, services.Transient(err)
			}
			return nil, err
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return services.Transient(err)
	}
	return err
}

// Count returns the number of documents currently in the index.
func (ei *ElasticIndex) Count(ctx context.Context) (int64, error) {
	ctx, cancel := ei.callCtx(ctx)
	defer cancel()

	res, err := ei.client.Count(
		ei.client.Count.WithContext(ctx),
		ei.client.Count.WithIndex(ei.indexName),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count request returned %s", res.Status())
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
