package services

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"

	"post-insight-pipeline/models"
)

// LanguageDetector classifies the language of raw text. Implementations fail
// closed: an undetectable input yields the unknown sentinel, never an error.
type LanguageDetector interface {
	Detect(raw string) models.LanguageDetection
}

var nonLetterPattern = regexp.MustCompile(`[^a-zA-Z\s]`)

// Detector is the production LanguageDetector backed by whatlanggo.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect strips noise characters that confuse the classifier, then detects
// the language. Inputs with fewer than three usable letters, or anything the
// classifier cannot place, come back as ("unknown", 0).
func (d *Detector) Detect(raw string) models.LanguageDetection {
	cleaned := strings.TrimSpace(nonLetterPattern.ReplaceAllString(raw, ""))
	if len(cleaned) < 3 {
		return unknownLanguage()
	}

	info := whatlanggo.Detect(cleaned)
	tag := info.Lang.Iso6391()
	if tag == "" {
		return unknownLanguage()
	}

	return models.LanguageDetection{
		Tag:        tag,
		Confidence: clamp(info.Confidence, 0, 1),
	}
}

func unknownLanguage() models.LanguageDetection {
	return models.LanguageDetection{Tag: models.LanguageTagUnknown, Confidence: 0}
}
