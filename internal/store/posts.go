package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"post-insight-pipeline/models"
)

// PostStore is the document-store contract the pipeline stages run against.
// The store exclusively owns document state; every write is a partial update
// keyed by id so a crash mid-run never corrupts fields written by an earlier
// stage.
type PostStore interface {
	InsertMany(ctx context.Context, docs []models.Document) (int, error)
	NextBelow(ctx context.Context, state string, exclude []string, limit int64) ([]models.Document, error)
	NextAfter(ctx context.Context, lastID string, limit int64) ([]models.Document, error)
	NextIndexable(ctx context.Context, exclude []string, limit int64) ([]models.Document, error)
	ApplyCleaned(ctx context.Context, id, cleanedText string, tokens []string, wordCount int, at time.Time, force bool) error
	ApplyEnriched(ctx context.Context, id string, enr models.Enrichment, at time.Time, force bool) error
	MarkIndexed(ctx context.Context, id string, at time.Time) error
	CountByState(ctx context.Context) (map[string]int64, error)
	CountByField(ctx context.Context, field string) (map[string]int64, error)
}

// MongoPostStore implements PostStore on a MongoDB collection.
type MongoPostStore struct {
	collection *mongo.Collection
}

func NewMongoPostStore(collection *mongo.Collection) *MongoPostStore {
	return &MongoPostStore{collection: collection}
}

func (s *MongoPostStore) InsertMany(ctx context.Context, docs []models.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	payload := make([]interface{}, len(docs))
	for i, doc := range docs {
		payload[i] = doc
	}

	res, err := s.collection.InsertMany(ctx, payload, options.InsertMany().SetOrdered(false))
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		return inserted, fmt.Errorf("failed to insert documents: %w", err)
	}
	return inserted, nil
}

// NextBelow returns up to limit documents that have not yet reached state,
// oldest first. Documents in exclude are not returned, so a batch loop can
// page past documents that already failed during the current run.
func (s *MongoPostStore) NextBelow(ctx context.Context, state string, exclude []string, limit int64) ([]models.Document, error) {
	below := statesBelow(state)
	if len(below) == 0 {
		return nil, nil
	}

	filter := bson.M{"state": bson.M{"$in": below}}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}

	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents below %s: %w", state, err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// NextAfter pages through the whole collection by id, for forced reprocess
// runs that must revisit already-advanced documents.
func (s *MongoPostStore) NextAfter(ctx context.Context, lastID string, limit int64) ([]models.Document, error) {
	filter := bson.M{}
	if lastID != "" {
		filter["_id"] = bson.M{"$gt": lastID}
	}

	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to page documents after %q: %w", lastID, err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// NextIndexable selects enriched documents the search index has not seen yet,
// plus documents whose enrichment is newer than their last indexing (so a
// forced reprocess is followed by a re-sync). Documents in exclude are not
// returned.
func (s *MongoPostStore) NextIndexable(ctx context.Context, exclude []string, limit int64) ([]models.Document, error) {
	filter := bson.M{
		"state": bson.M{"$in": []string{models.StateEnriched, models.StateIndexed}},
		"$or": []bson.M{
			{"indexed_at": nil},
			{"$expr": bson.M{"$lt": bson.A{"$indexed_at", "$enriched_at"}}},
		},
	}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}

	cursor, err := s.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexable documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

// ApplyCleaned persists the normalization products and advances the document
// to cleaned. Against a document already past raw the guarded update matches
// nothing, which makes the call a no-op unless force is set; a forced rewrite
// updates the fields but leaves the (already higher) state untouched.
func (s *MongoPostStore) ApplyCleaned(ctx context.Context, id, cleanedText string, tokens []string, wordCount int, at time.Time, force bool) error {
	if tokens == nil {
		tokens = []string{}
	}

	fields := bson.M{
		"cleaned_text": cleanedText,
		"tokens":       tokens,
		"word_count":   wordCount,
		"cleaned_at":   at,
	}

	guarded := bson.M{"$set": bson.M{"state": models.StateCleaned}}
	for k, v := range fields {
		guarded["$set"].(bson.M)[k] = v
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id, "state": models.StateRaw}, guarded)
	if err != nil {
		return fmt.Errorf("failed to apply cleaning to %s: %w", id, err)
	}
	if res.MatchedCount > 0 || !force {
		return nil
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to force-apply cleaning to %s: %w", id, err)
	}
	return nil
}

// ApplyEnriched persists the NLP products and advances the document to
// enriched, with the same guard-then-force update shape as ApplyCleaned.
func (s *MongoPostStore) ApplyEnriched(ctx context.Context, id string, enr models.Enrichment, at time.Time, force bool) error {
	fields := bson.M{
		"language":            enr.Language,
		"sentiment_consensus": enr.Consensus,
		"enriched_at":         at,
	}
	if enr.Lexicon != nil {
		fields["sentiment_lexicon"] = enr.Lexicon
	}
	if enr.Vader != nil {
		fields["sentiment_vader"] = enr.Vader
	}

	guarded := bson.M{"$set": bson.M{"state": models.StateEnriched}}
	for k, v := range fields {
		guarded["$set"].(bson.M)[k] = v
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id, "state": models.StateCleaned}, guarded)
	if err != nil {
		return fmt.Errorf("failed to apply enrichment to %s: %w", id, err)
	}
	if res.MatchedCount > 0 || !force {
		return nil
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to force-apply enrichment to %s: %w", id, err)
	}
	return nil
}

// MarkIndexed stamps indexed_at and advances an enriched document to indexed.
// Re-indexing an already-indexed document only refreshes the timestamp.
func (s *MongoPostStore) MarkIndexed(ctx context.Context, id string, at time.Time) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "state": models.StateEnriched},
		bson.M{"$set": bson.M{"state": models.StateIndexed, "indexed_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s indexed: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "state": models.StateIndexed},
		bson.M{"$set": bson.M{"indexed_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to refresh indexed_at for %s: %w", id, err)
	}
	return nil
}

func (s *MongoPostStore) CountByState(ctx context.Context) (map[string]int64, error) {
	return s.CountByField(ctx, "state")
}

// CountByField groups the collection by a (possibly nested) field and returns
// the per-value counts, mirroring the verification aggregations of the
// original batch reports.
func (s *MongoPostStore) CountByField(ctx context.Context, field string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID    *string `bson:"_id"`
		Count int64   `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		key := ""
		if row.ID != nil {
			key = *row.ID
		}
		counts[key] += row.Count
	}
	return counts, nil
}

func statesBelow(state string) []string {
	var below []string
	for _, candidate := range []string{models.StateRaw, models.StateCleaned, models.StateEnriched, models.StateIndexed} {
		if models.StateRank(candidate) < models.StateRank(state) {
			below = append(below, candidate)
		}
	}
	return below
}
