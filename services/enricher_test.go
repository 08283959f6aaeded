package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-insight-pipeline/models"
)

// fakeStore is an in-memory PostStore with the same guard-then-force update
// semantics as the real one, plus failure injection hooks.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document

	cleanedCalls  map[string]int
	enrichedCalls map[string]int
	markedCalls   map[string]int

	failEnrich    map[string]error
	failMark      map[string]error
	transientLeft map[string]int
}

func newFakeStore(docs ...models.Document) *fakeStore {
	s := &fakeStore{
		docs:          map[string]*models.Document{},
		cleanedCalls:  map[string]int{},
		enrichedCalls: map[string]int{},
		markedCalls:   map[string]int{},
		failEnrich:    map[string]error{},
		failMark:      map[string]error{},
		transientLeft: map[string]int{},
	}
	for i := range docs {
		doc := docs[i]
		s.docs[doc.ID] = &doc
	}
	return s
}

func (s *fakeStore) sorted() []models.Document {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.docs[id])
	}
	return out
}

func (s *fakeStore) InsertMany(ctx context.Context, docs []models.Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range docs {
		doc := docs[i]
		s.docs[doc.ID] = &doc
	}
	return len(docs), nil
}

func (s *fakeStore) NextBelow(ctx context.Context, state string, exclude []string, limit int64) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := map[string]bool{}
	for _, id := range exclude {
		excluded[id] = true
	}

	var out []models.Document
	for _, doc := range s.sorted() {
		if excluded[doc.ID] {
			continue
		}
		if models.StateRank(doc.State) < models.StateRank(state) && int64(len(out)) < limit {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeStore) NextAfter(ctx context.Context, lastID string, limit int64) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Document
	for _, doc := range s.sorted() {
		if doc.ID > lastID && int64(len(out)) < limit {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeStore) NextIndexable(ctx context.Context, exclude []string, limit int64) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := map[string]bool{}
	for _, id := range exclude {
		excluded[id] = true
	}

	var out []models.Document
	for _, doc := range s.sorted() {
		if excluded[doc.ID] {
			continue
		}
		if doc.State != models.StateEnriched && doc.State != models.StateIndexed {
			continue
		}
		stale := doc.IndexedAt == nil ||
			(doc.EnrichedAt != nil && doc.IndexedAt.Before(*doc.EnrichedAt))
		if stale && int64(len(out)) < limit {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeStore) ApplyCleaned(ctx context.Context, id, cleanedText string, tokens []string, wordCount int, at time.Time, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transientLeft[id] > 0 {
		s.transientLeft[id]--
		return Transient(errors.New("store hiccup"))
	}

	s.cleanedCalls[id]++
	doc, ok := s.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	if doc.State != models.StateRaw && !force {
		return nil
	}

	doc.CleanedText = cleanedText
	doc.Tokens = tokens
	doc.WordCount = wordCount
	doc.CleanedAt = &at
	if doc.State == models.StateRaw {
		doc.State = models.StateCleaned
	}
	return nil
}

func (s *fakeStore) ApplyEnriched(ctx context.Context, id string, enr models.Enrichment, at time.Time, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failEnrich[id]; err != nil {
		return err
	}

	s.enrichedCalls[id]++
	doc, ok := s.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	if doc.State != models.StateCleaned && !force {
		return nil
	}

	doc.Language = &enr.Language
	doc.SentimentLexicon = enr.Lexicon
	doc.SentimentVader = enr.Vader
	doc.SentimentConsensus = &enr.Consensus
	doc.EnrichedAt = &at
	if doc.State == models.StateCleaned {
		doc.State = models.StateEnriched
	}
	return nil
}

func (s *fakeStore) MarkIndexed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failMark[id]; err != nil {
		return err
	}

	s.markedCalls[id]++
	doc, ok := s.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	doc.IndexedAt = &at
	if doc.State == models.StateEnriched {
		doc.State = models.StateIndexed
	}
	return nil
}

func (s *fakeStore) CountByState(ctx context.Context) (map[string]int64, error) {
	return s.CountByField(ctx, "state")
}

func (s *fakeStore) CountByField(ctx context.Context, field string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int64{}
	for _, doc := range s.docs {
		if field == "state" {
			counts[doc.State]++
		}
	}
	return counts, nil
}

func (s *fakeStore) get(id string) models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.docs[id]
}

// fakeNormalizer records which texts it saw.
type fakeNormalizer struct {
	mu   sync.Mutex
	seen []string
}

func (n *fakeNormalizer) Normalize(raw string) (string, []string, int) {
	n.mu.Lock()
	n.seen = append(n.seen, raw)
	n.mu.Unlock()
	return "clean " + raw, []string{"clean", raw}, 2
}

type fakeDetector struct{}

func (fakeDetector) Detect(raw string) models.LanguageDetection {
	return models.LanguageDetection{Tag: "en", Confidence: 0.9}
}

// fixedScorer returns a canned judgment, an error, or panics.
type fixedScorer struct {
	name   string
	result models.SentimentScore
	err    error
	panics bool
}

func (s *fixedScorer) Name() string { return s.name }

func (s *fixedScorer) Score(text string) (models.SentimentScore, error) {
	if s.panics {
		panic("scorer blew up")
	}
	return s.result, s.err
}

func positiveScorer(name string) *fixedScorer {
	return &fixedScorer{name: name, result: models.SentimentScore{
		Polarity: 0.6, Confidence: 0.8, Label: models.LabelPositive,
	}}
}

func newTestEnricher(s *fakeStore, lexicon, vader Scorer) *Enricher {
	return NewEnricher(
		s,
		&fakeNormalizer{},
		fakeDetector{},
		lexicon, vader,
		NewConsensusEngine(),
		2, 3, time.Millisecond, time.Second,
		nil,
	)
}

func rawDoc(id, text string) models.Document {
	return models.Document{
		ID:        id,
		RawText:   text,
		CreatedAt: time.Now().UTC(),
		State:     models.StateRaw,
	}
}

func TestEnricherProcessesRawDocuments(t *testing.T) {
	s := newFakeStore(rawDoc("a", "first post"), rawDoc("b", "second post"))
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Failed)

	doc := s.get("a")
	assert.Equal(t, models.StateEnriched, doc.State)
	assert.Equal(t, "clean first post", doc.CleanedText)
	assert.Equal(t, 2, doc.WordCount)
	require.NotNil(t, doc.Language)
	assert.Equal(t, "en", doc.Language.Tag)
	require.NotNil(t, doc.SentimentConsensus)
	assert.Equal(t, models.LabelPositive, doc.SentimentConsensus.Label)
	assert.Equal(t, models.SourceDual, doc.SentimentConsensus.Source)
}

func TestEnricherIsIdempotent(t *testing.T) {
	s := newFakeStore(rawDoc("a", "some post"))
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	first, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 1, s.cleanedCalls["a"])
	assert.Equal(t, 1, s.enrichedCalls["a"])
}

func TestEnricherResumesWithoutRecleaning(t *testing.T) {
	doc := rawDoc("a", "interrupted post")
	doc.State = models.StateCleaned
	doc.CleanedText = "persisted cleaned text"
	doc.Tokens = []string{"persisted", "cleaned", "text"}
	doc.WordCount = 3

	s := newFakeStore(doc)
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, s.cleanedCalls["a"], "a cleaned document must not be re-normalized")

	got := s.get("a")
	assert.Equal(t, models.StateEnriched, got.State)
	assert.Equal(t, "persisted cleaned text", got.CleanedText)
}

func TestEnricherIsolatesScorerFailure(t *testing.T) {
	s := newFakeStore(rawDoc("a", "post"))
	failing := &fixedScorer{name: "lexicon", err: errors.New("lexicon broke")}
	e := newTestEnricher(s, failing, positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	doc := s.get("a")
	assert.Equal(t, models.StateEnriched, doc.State)
	assert.Nil(t, doc.SentimentLexicon)
	require.NotNil(t, doc.SentimentVader)
	require.NotNil(t, doc.SentimentConsensus)
	assert.Equal(t, models.SourceVader, doc.SentimentConsensus.Source)
	assert.InDelta(t, 0.8*0.75, doc.SentimentConsensus.Confidence, 1e-9)
}

func TestEnricherIsolatesScorerPanic(t *testing.T) {
	s := newFakeStore(rawDoc("a", "post"))
	panicking := &fixedScorer{name: "vader", panics: true}
	e := newTestEnricher(s, positiveScorer("lexicon"), panicking)

	summary, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	doc := s.get("a")
	assert.Equal(t, models.StateEnriched, doc.State)
	assert.Nil(t, doc.SentimentVader)
	require.NotNil(t, doc.SentimentConsensus)
	assert.Equal(t, models.SourceLexicon, doc.SentimentConsensus.Source)
}

func TestEnricherContinuesPastFailingDocument(t *testing.T) {
	s := newFakeStore(rawDoc("a", "doomed"), rawDoc("b", "fine"))
	s.failEnrich["a"] = errors.New("document rejected")
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a"}, summary.FailedIDs)
	assert.Equal(t, models.StateEnriched, s.get("b").State)
}

func TestEnricherRetriesTransientStoreFailure(t *testing.T) {
	s := newFakeStore(rawDoc("a", "post"))
	s.transientLeft["a"] = 2
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, models.StateEnriched, s.get("a").State)
}

func TestEnricherReachesDocumentsBehindFailingBatch(t *testing.T) {
	s := newFakeStore(
		rawDoc("a", "doomed one"), rawDoc("b", "doomed two"),
		rawDoc("c", "fine one"), rawDoc("d", "fine two"),
	)
	s.failEnrich["a"] = errors.New("rejected")
	s.failEnrich["b"] = errors.New("rejected")
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.ElementsMatch(t, []string{"a", "b"}, summary.FailedIDs)
	assert.Equal(t, models.StateEnriched, s.get("c").State)
	assert.Equal(t, models.StateEnriched, s.get("d").State)
}

func TestEnricherCountsRacedDocumentsAsSkipped(t *testing.T) {
	s := newFakeStore()
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	doc := rawDoc("a", "already advanced")
	doc.State = models.StateEnriched

	summary := models.NewRunSummary()
	e.processOne(context.Background(), doc, false, summary)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Processed)
}

func TestEnricherForceReprocessesAdvancedDocuments(t *testing.T) {
	doc := rawDoc("a", "already done")
	doc.State = models.StateIndexed
	doc.CleanedText = "old cleaned"

	s := newFakeStore(doc)
	e := newTestEnricher(s, positiveScorer("lexicon"), positiveScorer("vader"))

	summary, err := e.Run(context.Background(), EnrichOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, s.cleanedCalls["a"])

	got := s.get("a")
	assert.Equal(t, "clean already done", got.CleanedText)
	assert.Equal(t, models.StateIndexed, got.State, "a forced rewrite must not regress state")
}
