package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/internal/store"
	"post-insight-pipeline/internal/telemetry"
	"post-insight-pipeline/models"
)

const titleMaxLen = 100

// SearchIndex is the write surface of the search backend. Upserts are keyed
// by document id, so replaying a batch overwrites rather than duplicates.
type SearchIndex interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, id string, body map[string]interface{}) error
	Count(ctx context.Context) (int64, error)
}

// IndexSyncer pushes enriched documents into the search index. A document is
// due for sync when it was never indexed or was re-enriched after its last
// sync. Per-document upsert failures are recorded and skipped; an unreachable
// index aborts the whole run before any document is touched.
type IndexSyncer struct {
	store          store.PostStore
	index          SearchIndex
	maxRetries     int
	retryBaseDelay time.Duration
	storeTimeout   time.Duration
	metrics        *telemetry.Metrics
}

func NewIndexSyncer(
	posts store.PostStore,
	index SearchIndex,
	maxRetries int,
	retryBaseDelay, storeTimeout time.Duration,
	metrics *telemetry.Metrics,
) *IndexSyncer {
	return &IndexSyncer{
		store:          posts,
		index:          index,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		storeTimeout:   storeTimeout,
		metrics:        metrics,
	}
}

// Sync drains every indexable document into the search index. Documents that
// fail are excluded from the following fetches, so the run still reaches
// everything queued behind them.
func (s *IndexSyncer) Sync(ctx context.Context, batchSize int64) (*models.RunSummary, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	summary := models.NewRunSummary()

	if err := s.index.EnsureIndex(ctx); err != nil {
		return summary.Finish(), fmt.Errorf("search index unavailable: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary.Finish(), err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		batch, err := s.store.NextIndexable(fetchCtx, summary.FailedIDList(), batchSize)
		cancel()
		if err != nil {
			return summary.Finish(), err
		}
		if len(batch) == 0 {
			break
		}

		beforeProcessed := summary.ProcessedCount()
		beforeFailed := summary.FailedCount()
		for i := range batch {
			s.syncOne(ctx, &batch[i], summary)
		}

		// A batch that neither indexed nor newly failed anything cannot
		// change the next fetch; break so the loop cannot spin.
		if summary.ProcessedCount() == beforeProcessed && summary.FailedCount() == beforeFailed {
			break
		}
	}

	summary.Finish()
	logger.Info("index sync finished",
		"indexed", summary.Processed,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (s *IndexSyncer) syncOne(ctx context.Context, doc *models.Document, summary *models.RunSummary) {
	body := flattenDocument(doc)

	err := retryWithBackoff(ctx, func() error {
		return s.index.Upsert(ctx, doc.ID, body)
	}, s.maxRetries, s.retryBaseDelay)
	if err != nil {
		logger.Error("index upsert failed", "id", doc.ID, "error", err.Error())
		summary.RecordFailed(doc.ID)
		s.metrics.RecordIndexFailure(ctx)
		return
	}

	err = retryWithBackoff(ctx, func() error {
		opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		return s.store.MarkIndexed(opCtx, doc.ID, time.Now().UTC())
	}, s.maxRetries, s.retryBaseDelay)
	if err != nil {
		// The upsert landed; the next run will redo it idempotently.
		logger.Error("failed to mark document indexed", "id", doc.ID, "error", err.Error())
		summary.RecordFailed(doc.ID)
		return
	}

	summary.RecordProcessed()
	s.metrics.RecordIndexed(ctx)
}

// flattenDocument shapes a document for the search index: nested enrichment
// structs become flat fields so the index mapping stays simple.
func flattenDocument(doc *models.Document) map[string]interface{} {
	title := truncateRunes(doc.RawText, titleMaxLen)

	body := map[string]interface{}{
		"post_id":           doc.ID,
		"title":             title,
		"content":           doc.RawText,
		"content_processed": doc.CleanedText,
		"label":             doc.Label,
		"category":          doc.Type,
		"text_length":       len(doc.RawText),
		"word_count":        doc.WordCount,
	}

	if doc.Language != nil {
		body["language"] = doc.Language.Tag
		body["language_confidence"] = doc.Language.Confidence
	}
	if doc.SentimentConsensus != nil {
		body["sentiment"] = doc.SentimentConsensus.Label
		body["sentiment_score"] = doc.SentimentConsensus.Score
		body["sentiment_confidence"] = doc.SentimentConsensus.Confidence
		body["sentiment_source"] = doc.SentimentConsensus.Source
	}
	if doc.SentimentLexicon != nil {
		body["lexicon_polarity"] = doc.SentimentLexicon.Polarity
		body["lexicon_subjectivity"] = doc.SentimentLexicon.Subjectivity
		body["lexicon_label"] = doc.SentimentLexicon.Label
	}
	if doc.SentimentVader != nil {
		body["vader_compound"] = doc.SentimentVader.Polarity
		body["vader_positive"] = doc.SentimentVader.Positive
		body["vader_neutral"] = doc.SentimentVader.Neutral
		body["vader_negative"] = doc.SentimentVader.Negative
		body["vader_label"] = doc.SentimentVader.Label
	}

	return body
}

// truncateRunes cuts s to at most max bytes without splitting a multi-byte
// rune mid-sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
