package services

import (
	"regexp"
	"strings"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// Common English stop words dropped during normalization.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "this": true, "but": true, "they": true, "have": true,
	"had": true, "what": true, "when": true, "where": true, "who": true, "which": true,
	"why": true, "how": true, "all": true, "any": true, "both": true, "each": true,
	"few": true, "more": true, "most": true, "other": true, "some": true, "such": true,
	"no": true, "nor": true, "only": true, "own": true, "same": true,
	"so": true, "than": true, "too": true, "can": true, "did": true,
	"do": true, "does": true, "doing": true, "done": true, "i": true, "you": true,
	"she": true, "we": true, "me": true, "him": true, "her": true, "them": true,
	"my": true, "your": true, "his": true, "their": true, "our": true, "am": true,
	"been": true, "being": true, "if": true, "or": true, "because": true,
	"until": true, "while": true, "about": true, "into": true, "through": true,
	"s": true, "t": true, "just": true, "now": true, "then": true, "there": true,
	"here": true, "again": true, "once": true, "up": true, "down": true,
	"out": true, "off": true, "over": true, "under": true,
}

// TextNormalizer produces a canonical token stream from raw text.
// Implementations must be pure and deterministic.
type TextNormalizer interface {
	Normalize(raw string) (cleanedText string, tokens []string, wordCount int)
}

// Normalizer is the production TextNormalizer: an ordered pipeline of total
// transforms ending in stopword removal and dictionary lemmatization.
type Normalizer struct {
	tagPattern      *regexp.Regexp
	urlPattern      *regexp.Regexp
	nonAlnumPattern *regexp.Regexp
	digitPattern    *regexp.Regexp
	lemmatizer      *golem.Lemmatizer
}

func NewNormalizer() (*Normalizer, error) {
	lemmatizer, err := golem.New(en.New())
	if err != nil {
		return nil, err
	}

	return &Normalizer{
		tagPattern:      regexp.MustCompile(`<[^>]*>`),
		urlPattern:      regexp.MustCompile(`http[s]?://\S+`),
		nonAlnumPattern: regexp.MustCompile(`[^a-z0-9\s]`),
		digitPattern:    regexp.MustCompile(`\d+`),
		lemmatizer:      lemmatizer,
	}, nil
}

// Normalize lowercases raw, strips markup tags, URLs, punctuation and digits,
// drops stopwords and single characters, and lemmatizes what survives.
// cleanedText is the surviving lemmas re-joined; wordCount is their number.
// An input that normalizes to nothing is valid and yields ("", nil, 0).
func (n *Normalizer) Normalize(raw string) (string, []string, int) {
	text := strings.ToLower(raw)
	text = n.tagPattern.ReplaceAllString(text, " ")
	text = n.urlPattern.ReplaceAllString(text, " ")
	text = n.nonAlnumPattern.ReplaceAllString(text, " ")
	text = n.digitPattern.ReplaceAllString(text, "")

	var tokens []string
	for _, word := range strings.Fields(text) {
		if stopWords[word] {
			continue
		}
		lemma := n.lemmatizer.Lemma(word)
		if len(lemma) <= 1 {
			continue
		}
		tokens = append(tokens, lemma)
	}

	return strings.Join(tokens, " "), tokens, len(tokens)
}
