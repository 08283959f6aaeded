package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/internal/store"
	"post-insight-pipeline/internal/telemetry"
	"post-insight-pipeline/models"
)

// EnrichOptions controls one enrichment run.
type EnrichOptions struct {
	// BatchSize bounds how many documents are fetched per store round-trip.
	BatchSize int64
	// Force reprocesses documents that already advanced past a stage.
	Force bool
}

// Enricher drives each document through the Raw -> Cleaned -> Enriched state
// machine. Every transition persists only its own fields as a partial update,
// so an interrupted run resumes from the true persisted state. Documents are
// independent units of work and are processed by a bounded worker pool.
type Enricher struct {
	store      store.PostStore
	normalizer TextNormalizer
	detector   LanguageDetector
	lexicon    Scorer
	vader      Scorer
	consensus  *ConsensusEngine

	workers        int
	maxRetries     int
	retryBaseDelay time.Duration
	storeTimeout   time.Duration
	metrics        *telemetry.Metrics
}

func NewEnricher(
	posts store.PostStore,
	normalizer TextNormalizer,
	detector LanguageDetector,
	lexicon, vader Scorer,
	consensus *ConsensusEngine,
	workers, maxRetries int,
	retryBaseDelay, storeTimeout time.Duration,
	metrics *telemetry.Metrics,
) *Enricher {
	if workers <= 0 {
		workers = 1
	}

	return &Enricher{
		store:          posts,
		normalizer:     normalizer,
		detector:       detector,
		lexicon:        lexicon,
		vader:          vader,
		consensus:      consensus,
		workers:        workers,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		storeTimeout:   storeTimeout,
		metrics:        metrics,
	}
}

// Run enriches every document still below Enriched (or every document, when
// forced). Per-document failures are recorded and never abort the batch: each
// batch excludes the ids that already failed during this run, so healthy
// documents sorted behind failing ones are still reached. The returned summary
// carries the failed ids for targeted retry.
//
// The Skipped count only covers documents that advanced between fetch and
// processing; documents already done before the run never leave the store, so
// they appear in no counter.
func (e *Enricher) Run(ctx context.Context, opts EnrichOptions) (*models.RunSummary, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	summary := models.NewRunSummary()

	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return summary.Finish(), err
		}

		batch, err := e.nextBatch(ctx, opts, lastID, summary)
		if err != nil {
			return summary.Finish(), err
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].ID

		beforeProcessed := summary.ProcessedCount()
		beforeFailed := summary.FailedCount()

		var wg sync.WaitGroup
		for i := range batch {
			doc := batch[i]
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				e.processOne(ctx, doc, opts.Force, summary)
			})
			if submitErr != nil {
				wg.Done()
				summary.RecordFailed(doc.ID)
			}
		}
		wg.Wait()

		if int64(len(batch)) < opts.BatchSize {
			break
		}
		// Failed ids are excluded from the next fetch, so the loop normally
		// ends by draining the selector. A batch that neither processed nor
		// newly failed anything cannot change the next fetch; break so the
		// loop cannot spin.
		if summary.ProcessedCount() == beforeProcessed && summary.FailedCount() == beforeFailed {
			break
		}
	}

	summary.Finish()
	logger.Info("enrichment run finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (e *Enricher) nextBatch(ctx context.Context, opts EnrichOptions, lastID string, summary *models.RunSummary) ([]models.Document, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if opts.Force {
		return e.store.NextAfter(fetchCtx, lastID, opts.BatchSize)
	}
	return e.store.NextBelow(fetchCtx, models.StateEnriched, summary.FailedIDList(), opts.BatchSize)
}

func (e *Enricher) processOne(ctx context.Context, doc models.Document, force bool, summary *models.RunSummary) {
	start := time.Now()

	if !force && models.StateAtLeast(doc.State, models.StateEnriched) {
		summary.RecordSkipped()
		return
	}

	if err := e.clean(ctx, &doc, force); err != nil {
		logger.Error("cleaning failed", "id", doc.ID, "error", err.Error())
		summary.RecordFailed(doc.ID)
		e.metrics.RecordFailure(ctx, "clean")
		return
	}

	if err := e.enrich(ctx, &doc, force); err != nil {
		logger.Error("enrichment failed", "id", doc.ID, "error", err.Error())
		summary.RecordFailed(doc.ID)
		e.metrics.RecordFailure(ctx, "enrich")
		return
	}

	summary.RecordProcessed()
	e.metrics.RecordProcessed(ctx, time.Since(start))
}

// clean applies the normalizer and persists its products. A document that
// already reached Cleaned keeps its persisted normalization untouched, so
// resuming a run never re-does this step.
func (e *Enricher) clean(ctx context.Context, doc *models.Document, force bool) error {
	if !force && models.StateAtLeast(doc.State, models.StateCleaned) {
		return nil
	}

	cleaned, tokens, wordCount := e.normalizer.Normalize(doc.RawText)
	now := time.Now().UTC()

	err := retryWithBackoff(ctx, func() error {
		opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
		return e.store.ApplyCleaned(opCtx, doc.ID, cleaned, tokens, wordCount, now, force)
	}, e.maxRetries, e.retryBaseDelay)
	if err != nil {
		return err
	}

	doc.CleanedText = cleaned
	doc.Tokens = tokens
	doc.WordCount = wordCount
	doc.State = models.StateCleaned
	return nil
}

// enrich runs the detector and both scorers, fuses the surviving judgments,
// and persists the result. The scorers are fault-isolated from each other:
// one failing leaves the other's signal intact and the consensus flags the
// reduced provenance.
func (e *Enricher) enrich(ctx context.Context, doc *models.Document, force bool) error {
	language := e.detector.Detect(doc.RawText)

	lexScore, lexErr := safeScore(e.lexicon, doc.CleanedText)
	if lexErr != nil {
		logger.Warn("scorer failed, continuing without it", "scorer", e.lexicon.Name(), "id", doc.ID, "error", lexErr.Error())
	}
	vaderScore, vaderErr := safeScore(e.vader, doc.RawText)
	if vaderErr != nil {
		logger.Warn("scorer failed, continuing without it", "scorer", e.vader.Name(), "id", doc.ID, "error", vaderErr.Error())
	}

	var lexPtr, vaderPtr *models.SentimentScore
	if lexErr == nil {
		lexPtr = &lexScore
	}
	if vaderErr == nil {
		vaderPtr = &vaderScore
	}

	enrichment := models.Enrichment{
		Language:  language,
		Lexicon:   lexPtr,
		Vader:     vaderPtr,
		Consensus: e.consensus.Fuse(lexPtr, vaderPtr),
	}
	now := time.Now().UTC()

	return retryWithBackoff(ctx, func() error {
		opCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
		return e.store.ApplyEnriched(opCtx, doc.ID, enrichment, now, force)
	}, e.maxRetries, e.retryBaseDelay)
}

// safeScore shields the pipeline from a panicking scorer implementation.
func safeScore(s Scorer, text string) (score models.SentimentScore, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Score(text)
}
