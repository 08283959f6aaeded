package services

import (
	"math"
	"strings"

	"github.com/jonreiter/govader"

	"post-insight-pipeline/models"
)

// Scorer is one independent sentiment scoring strategy. Implementations are
// stateless and total; an error return is reserved for substitute strategies
// so the orchestrator can exercise its fault isolation.
type Scorer interface {
	Name() string
	Score(text string) (models.SentimentScore, error)
}

// sentimentLabel maps a polarity to a discrete label using the threshold
// shared by every scorer.
func sentimentLabel(polarity, threshold float64) string {
	switch {
	case polarity > threshold:
		return models.LabelPositive
	case polarity < -threshold:
		return models.LabelNegative
	default:
		return models.LabelNeutral
	}
}

// neutralScore is the sentinel substituted for empty or unmatchable input.
func neutralScore() models.SentimentScore {
	return models.SentimentScore{
		Neutral:    1,
		Confidence: 1,
		Label:      models.LabelNeutral,
	}
}

type lexiconEntry struct {
	polarity     float64
	subjectivity float64
}

// Word weights for the lexicon scorer. The negative side is heavier because
// the corpus this pipeline was built for skews toward abusive posts.
var polarityLexicon = map[string]lexiconEntry{
	"love": {0.8, 0.7}, "loved": {0.8, 0.7}, "great": {0.8, 0.75}, "amazing": {0.9, 0.9},
	"wonderful": {0.9, 1.0}, "fantastic": {0.9, 0.9}, "good": {0.6, 0.6}, "best": {1.0, 0.3},
	"awesome": {0.9, 0.9}, "excellent": {0.9, 1.0}, "happy": {0.7, 0.9}, "beautiful": {0.85, 1.0},
	"kind": {0.6, 0.9}, "nice": {0.6, 1.0}, "friend": {0.4, 0.4}, "support": {0.4, 0.3},
	"win": {0.5, 0.4}, "thank": {0.5, 0.4}, "fun": {0.6, 0.7}, "cool": {0.5, 0.7},
	"brilliant": {0.9, 0.9}, "perfect": {1.0, 1.0}, "enjoy": {0.6, 0.6}, "like": {0.4, 0.5},

	"hate": {-0.8, 0.9}, "hated": {-0.8, 0.9}, "terrible": {-0.9, 0.9}, "awful": {-0.9, 1.0},
	"horrible": {-0.9, 1.0}, "bad": {-0.6, 0.65}, "worst": {-1.0, 0.3}, "stupid": {-0.7, 0.9},
	"ugly": {-0.7, 1.0}, "dumb": {-0.7, 0.9}, "idiot": {-0.8, 0.9}, "loser": {-0.8, 0.9},
	"pathetic": {-0.8, 0.9}, "worthless": {-0.9, 0.9}, "disgusting": {-0.9, 1.0},
	"kill": {-0.8, 0.6}, "die": {-0.8, 0.6}, "hurt": {-0.6, 0.6}, "harass": {-0.8, 0.6},
	"bully": {-0.8, 0.7}, "abuse": {-0.8, 0.6}, "threat": {-0.7, 0.5}, "threaten": {-0.7, 0.5},
	"attack": {-0.6, 0.5}, "shame": {-0.6, 0.7}, "fat": {-0.5, 0.8}, "freak": {-0.6, 0.9},
	"creep": {-0.6, 0.8}, "annoying": {-0.6, 0.9}, "sad": {-0.5, 0.8}, "angry": {-0.6, 0.8},
	"cry": {-0.4, 0.6}, "alone": {-0.3, 0.5}, "wrong": {-0.4, 0.5}, "fail": {-0.5, 0.5},
}

var negators = map[string]bool{
	"not": true, "never": true, "cannot": true, "cant": true, "dont": true,
	"doesnt": true, "didnt": true, "isnt": true, "wasnt": true, "wont": true,
}

var intensifiers = map[string]bool{
	"very": true, "really": true, "extremely": true, "totally": true, "absolutely": true,
}

// LexiconScorer scores cleaned text against a fixed polarity lexicon with
// single-token negation and intensifier handling. Its own-confidence is the
// intensity for its chosen label: |polarity| when it commits to a side,
// closeness to zero when it stays neutral.
type LexiconScorer struct {
	threshold float64
}

func NewLexiconScorer(threshold float64) *LexiconScorer {
	return &LexiconScorer{threshold: threshold}
}

func (s *LexiconScorer) Name() string { return "lexicon" }

func (s *LexiconScorer) Score(text string) (models.SentimentScore, error) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return neutralScore(), nil
	}

	var sum, subjSum float64
	var matched int
	negate := false
	boost := 1.0

	for _, word := range words {
		if negators[word] {
			negate = true
			continue
		}
		if intensifiers[word] {
			boost = 1.25
			continue
		}

		entry, ok := polarityLexicon[word]
		if ok {
			polarity := entry.polarity * boost
			if negate {
				polarity = -polarity
			}
			sum += clamp(polarity, -1, 1)
			subjSum += entry.subjectivity
			matched++
		}
		negate = false
		boost = 1.0
	}

	if matched == 0 {
		return neutralScore(), nil
	}

	polarity := clamp(sum/float64(matched), -1, 1)
	label := sentimentLabel(polarity, s.threshold)

	confidence := math.Abs(polarity)
	if label == models.LabelNeutral {
		confidence = 1 - math.Abs(polarity)
	}

	return models.SentimentScore{
		Polarity:     polarity,
		Subjectivity: subjSum / float64(matched),
		Confidence:   confidence,
		Label:        label,
	}, nil
}

// VaderScorer scores raw text with the VADER intensity analyzer, which is
// punctuation- and emphasis-sensitive. Its own-confidence is the intensity
// share of the winning label.
type VaderScorer struct {
	analyzer  *govader.SentimentIntensityAnalyzer
	threshold float64
}

func NewVaderScorer(threshold float64) *VaderScorer {
	return &VaderScorer{
		analyzer:  govader.NewSentimentIntensityAnalyzer(),
		threshold: threshold,
	}
}

func (s *VaderScorer) Name() string { return "vader" }

func (s *VaderScorer) Score(text string) (models.SentimentScore, error) {
	if strings.TrimSpace(text) == "" {
		return neutralScore(), nil
	}

	scores := s.analyzer.PolarityScores(text)
	label := sentimentLabel(scores.Compound, s.threshold)

	confidence := scores.Neutral
	switch label {
	case models.LabelPositive:
		confidence = scores.Positive
	case models.LabelNegative:
		confidence = scores.Negative
	}

	return models.SentimentScore{
		Polarity:   scores.Compound,
		Positive:   scores.Positive,
		Neutral:    scores.Neutral,
		Negative:   scores.Negative,
		Confidence: confidence,
		Label:      label,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
