package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-insight-pipeline/models"
)

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]map[string]interface{}
	upserts int

	ensureErr     error
	failUpsert    map[string]error
	transientLeft map[string]int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		docs:          map[string]map[string]interface{}{},
		failUpsert:    map[string]error{},
		transientLeft: map[string]int{},
	}
}

func (f *fakeIndex) EnsureIndex(ctx context.Context) error { return f.ensureErr }

func (f *fakeIndex) Upsert(ctx context.Context, id string, body map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transientLeft[id] > 0 {
		f.transientLeft[id]--
		return Transient(errors.New("index hiccup"))
	}
	if err := f.failUpsert[id]; err != nil {
		return err
	}

	f.upserts++
	f.docs[id] = body
	return nil
}

func (f *fakeIndex) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs)), nil
}

func enrichedDoc(id, text string) models.Document {
	now := time.Now().UTC()
	return models.Document{
		ID:          id,
		RawText:     text,
		CreatedAt:   now,
		CleanedText: "cleaned " + text,
		WordCount:   2,
		Language:    &models.LanguageDetection{Tag: "en", Confidence: 0.9},
		SentimentConsensus: &models.SentimentConsensus{
			Label: models.LabelNegative, Confidence: 0.7, Score: -0.5, Source: models.SourceDual,
		},
		State:      models.StateEnriched,
		EnrichedAt: &now,
	}
}

func newTestSyncer(s *fakeStore, idx SearchIndex) *IndexSyncer {
	return NewIndexSyncer(s, idx, 3, time.Millisecond, time.Second, nil)
}

func TestSyncIndexesEnrichedDocuments(t *testing.T) {
	s := newFakeStore(enrichedDoc("a", "first"), enrichedDoc("b", "second"))
	idx := newFakeIndex()

	summary, err := newTestSyncer(s, idx).Sync(context.Background(), 500)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Len(t, idx.docs, 2)

	doc := s.get("a")
	assert.Equal(t, models.StateIndexed, doc.State)
	require.NotNil(t, doc.IndexedAt)

	body := idx.docs["a"]
	assert.Equal(t, "a", body["post_id"])
	assert.Equal(t, "first", body["content"])
	assert.Equal(t, "cleaned first", body["content_processed"])
	assert.Equal(t, "en", body["language"])
	assert.Equal(t, models.LabelNegative, body["sentiment"])
}

func TestSyncIsIdempotent(t *testing.T) {
	s := newFakeStore(enrichedDoc("a", "post"))
	idx := newFakeIndex()
	syncer := newTestSyncer(s, idx)

	_, err := syncer.Sync(context.Background(), 500)
	require.NoError(t, err)
	require.Equal(t, 1, idx.upserts)

	second, err := syncer.Sync(context.Background(), 500)
	require.NoError(t, err)

	assert.Zero(t, second.Processed)
	assert.Equal(t, 1, idx.upserts, "an already-synced document must not be re-upserted")
}

func TestSyncAbortsWhenIndexUnavailable(t *testing.T) {
	s := newFakeStore(enrichedDoc("a", "post"))
	idx := newFakeIndex()
	idx.ensureErr = errors.New("connection refused")

	_, err := newTestSyncer(s, idx).Sync(context.Background(), 500)

	require.Error(t, err)
	assert.Zero(t, idx.upserts)
	assert.Equal(t, models.StateEnriched, s.get("a").State)
}

func TestSyncContinuesPastFailingDocument(t *testing.T) {
	s := newFakeStore(enrichedDoc("a", "doomed"), enrichedDoc("b", "fine"))
	idx := newFakeIndex()
	idx.failUpsert["a"] = errors.New("mapping conflict")

	summary, err := newTestSyncer(s, idx).Sync(context.Background(), 500)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, []string{"a"}, summary.FailedIDs)

	assert.Nil(t, s.get("a").IndexedAt, "a failed document must stay due for the next run")
	assert.Equal(t, models.StateIndexed, s.get("b").State)
}

func TestSyncReachesDocumentsBehindFailingBatch(t *testing.T) {
	s := newFakeStore(
		enrichedDoc("a", "doomed one"), enrichedDoc("b", "doomed two"),
		enrichedDoc("c", "fine one"), enrichedDoc("d", "fine two"),
	)
	idx := newFakeIndex()
	idx.failUpsert["a"] = errors.New("mapping conflict")
	idx.failUpsert["b"] = errors.New("mapping conflict")

	summary, err := newTestSyncer(s, idx).Sync(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.ElementsMatch(t, []string{"a", "b"}, summary.FailedIDs)
	assert.Equal(t, models.StateIndexed, s.get("c").State)
	assert.Equal(t, models.StateIndexed, s.get("d").State)
}

func TestSyncRetriesTransientUpsert(t *testing.T) {
	s := newFakeStore(enrichedDoc("a", "post"))
	idx := newFakeIndex()
	idx.transientLeft["a"] = 2

	summary, err := newTestSyncer(s, idx).Sync(context.Background(), 500)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, models.StateIndexed, s.get("a").State)
}

func TestSyncPicksUpReenrichedDocuments(t *testing.T) {
	doc := enrichedDoc("a", "post")
	doc.State = models.StateIndexed
	indexedEarlier := doc.EnrichedAt.Add(-time.Hour)
	doc.IndexedAt = &indexedEarlier

	s := newFakeStore(doc)
	idx := newFakeIndex()

	summary, err := newTestSyncer(s, idx).Sync(context.Background(), 500)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, idx.upserts)
	assert.True(t, s.get("a").IndexedAt.After(*s.get("a").EnrichedAt) ||
		s.get("a").IndexedAt.Equal(*s.get("a").EnrichedAt))
}

func TestFlattenDocumentTruncatesTitle(t *testing.T) {
	doc := enrichedDoc("a", strings.Repeat("x", 300))

	body := flattenDocument(&doc)

	assert.Len(t, body["title"], 100)
	assert.Len(t, body["content"], 300)
	assert.Equal(t, 300, body["text_length"])
}

func TestFlattenDocumentTruncatesOnRuneBoundary(t *testing.T) {
	doc := enrichedDoc("a", strings.Repeat("é", 200))

	body := flattenDocument(&doc)

	title := body["title"].(string)
	assert.LessOrEqual(t, len(title), 100)
	assert.True(t, utf8.ValidString(title), "truncation must not split a rune")
}

func TestFlattenDocumentOmitsMissingScores(t *testing.T) {
	doc := enrichedDoc("a", "post")
	doc.SentimentLexicon = nil
	doc.SentimentVader = nil

	body := flattenDocument(&doc)

	assert.NotContains(t, body, "lexicon_polarity")
	assert.NotContains(t, body, "vader_compound")
	assert.Contains(t, body, "sentiment")
}
