package services

import (
	"post-insight-pipeline/models"
)

// singleScorerPenalty discounts a consensus built from only one surviving
// scorer, so degraded results are distinguishable from dual agreement.
const singleScorerPenalty = 0.75

// ConsensusEngine fuses the two sentiment judgments into one decision.
//
// The fusion rule, in full, because every downstream metric hangs off it:
//   - both scorers agree on the label: that label wins, with confidence equal
//     to the mean of the two scorers' own confidences;
//   - the scorers disagree: the label of the scorer with the higher own
//     confidence wins, with confidence low*(high-low)/high, which is strictly
//     below both individual confidences;
//   - the own confidences are numerically equal: neutral, with confidence 0.
//     Misclassifying severity is costlier than under-committing, so a dead
//     tie carries no usable signal.
//
// The engine works purely off the labels and confidences the scorers already
// assigned; both scorers classifying with the same shared threshold is what
// makes those labels comparable at all.
type ConsensusEngine struct{}

func NewConsensusEngine() *ConsensusEngine {
	return &ConsensusEngine{}
}

// Fuse combines whatever scorer judgments survived. Either argument may be
// nil when its scorer failed; the result's Source records which scorers
// actually contributed.
func (e *ConsensusEngine) Fuse(lexicon, vader *models.SentimentScore) models.SentimentConsensus {
	switch {
	case lexicon == nil && vader == nil:
		return models.SentimentConsensus{
			Label:  models.LabelNeutral,
			Source: models.SourceNone,
		}
	case vader == nil:
		return e.single(lexicon, models.SourceLexicon)
	case lexicon == nil:
		return e.single(vader, models.SourceVader)
	}

	score := (lexicon.Polarity + vader.Polarity) / 2

	if lexicon.Label == vader.Label {
		return models.SentimentConsensus{
			Label:      lexicon.Label,
			Confidence: (lexicon.Confidence + vader.Confidence) / 2,
			Score:      score,
			Source:     models.SourceDual,
		}
	}

	if lexicon.Confidence == vader.Confidence {
		return models.SentimentConsensus{
			Label:      models.LabelNeutral,
			Confidence: 0,
			Score:      score,
			Source:     models.SourceDual,
		}
	}

	high, low := lexicon, vader
	if vader.Confidence > lexicon.Confidence {
		high, low = vader, lexicon
	}

	return models.SentimentConsensus{
		Label:      high.Label,
		Confidence: low.Confidence * (high.Confidence - low.Confidence) / high.Confidence,
		Score:      score,
		Source:     models.SourceDual,
	}
}

func (e *ConsensusEngine) single(s *models.SentimentScore, source string) models.SentimentConsensus {
	return models.SentimentConsensus{
		Label:      s.Label,
		Confidence: s.Confidence * singleScorerPenalty,
		Score:      s.Polarity,
		Source:     source,
	}
}
