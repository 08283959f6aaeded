package models

import "time"

// Processing states for a post document. The order is total and a document
// never moves backwards through it.
const (
	StateRaw      = "raw"
	StateCleaned  = "cleaned"
	StateEnriched = "enriched"
	StateIndexed  = "indexed"
)

var stateRank = map[string]int{
	StateRaw:      0,
	StateCleaned:  1,
	StateEnriched: 2,
	StateIndexed:  3,
}

// StateRank returns the position of a state in the processing order,
// or -1 for an unknown state.
func StateRank(state string) int {
	if rank, ok := stateRank[state]; ok {
		return rank
	}
	return -1
}

// StateAtLeast reports whether state has reached floor in the processing order.
// Unknown states are treated as before raw.
func StateAtLeast(state, floor string) bool {
	return StateRank(state) >= StateRank(floor) && StateRank(floor) >= 0
}

// Sentiment labels shared by the scorers and the consensus engine.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// Provenance values for a consensus result. Anything other than SourceDual
// means the consensus was computed in degraded mode.
const (
	SourceDual    = "dual"
	SourceLexicon = "lexicon"
	SourceVader   = "vader"
	SourceNone    = "none"
)

// LanguageTagUnknown is the fail-closed sentinel for undetectable input.
// Downstream stages treat it as valid data, not as an error.
const LanguageTagUnknown = "unknown"

// LanguageDetection is the language classifier's judgment for a document.
type LanguageDetection struct {
	Tag        string  `bson:"tag" json:"tag"`
	Confidence float64 `bson:"confidence" json:"confidence"`
}

// SentimentScore is one scorer's judgment. Polarity is in [-1,1].
// Subjectivity is only set by the lexicon scorer; the Positive/Neutral/Negative
// breakdown (summing to 1) only by the VADER scorer. Confidence is the
// scorer's own intensity for its chosen label, in [0,1].
type SentimentScore struct {
	Polarity     float64 `bson:"polarity" json:"polarity"`
	Subjectivity float64 `bson:"subjectivity,omitempty" json:"subjectivity,omitempty"`
	Positive     float64 `bson:"positive,omitempty" json:"positive,omitempty"`
	Neutral      float64 `bson:"neutral,omitempty" json:"neutral,omitempty"`
	Negative     float64 `bson:"negative,omitempty" json:"negative,omitempty"`
	Confidence   float64 `bson:"confidence" json:"confidence"`
	Label        string  `bson:"label" json:"label"`
}

// SentimentConsensus is the fused sentiment decision for a document.
// Score is the mean polarity of the contributing scorers.
type SentimentConsensus struct {
	Label      string  `bson:"label" json:"label"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	Score      float64 `bson:"score" json:"score"`
	Source     string  `bson:"source" json:"source"`
}

// Enrichment bundles everything the enrichment stage produces for one document.
type Enrichment struct {
	Language  LanguageDetection
	Lexicon   *SentimentScore
	Vader     *SentimentScore
	Consensus SentimentConsensus
}

// Document is a post moving through the pipeline. ID and RawText are immutable
// once set; the cleaning and enrichment fields are written once by their stage
// and only rewritten on an explicit forced reprocess.
type Document struct {
	ID        string    `bson:"_id" json:"id"`
	RawText   string    `bson:"raw_text" json:"raw_text"`
	Label     string    `bson:"label,omitempty" json:"label,omitempty"`
	Type      string    `bson:"type,omitempty" json:"type,omitempty"`
	Source    string    `bson:"source,omitempty" json:"source,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	CleanedText string   `bson:"cleaned_text,omitempty" json:"cleaned_text,omitempty"`
	Tokens      []string `bson:"tokens,omitempty" json:"tokens,omitempty"`
	WordCount   int      `bson:"word_count,omitempty" json:"word_count,omitempty"`

	Language           *LanguageDetection  `bson:"language,omitempty" json:"language,omitempty"`
	SentimentLexicon   *SentimentScore     `bson:"sentiment_lexicon,omitempty" json:"sentiment_lexicon,omitempty"`
	SentimentVader     *SentimentScore     `bson:"sentiment_vader,omitempty" json:"sentiment_vader,omitempty"`
	SentimentConsensus *SentimentConsensus `bson:"sentiment_consensus,omitempty" json:"sentiment_consensus,omitempty"`

	State      string     `bson:"state" json:"state"`
	CleanedAt  *time.Time `bson:"cleaned_at,omitempty" json:"cleaned_at,omitempty"`
	EnrichedAt *time.Time `bson:"enriched_at,omitempty" json:"enriched_at,omitempty"`
	IndexedAt  *time.Time `bson:"indexed_at,omitempty" json:"indexed_at,omitempty"`
}
