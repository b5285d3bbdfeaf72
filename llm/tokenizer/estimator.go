package tokenizer

import (
	"unicode/utf8"
)

// EstimatorTokenizer is a character-count-based token estimator.
// Sinhala and Tamil script (common in Sri Lankan news snippets) tokenise far
// denser than ASCII, so they are weighted separately.
type EstimatorTokenizer struct {
	charsPerToken float64
}

// NewEstimatorTokenizer creates a generic estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{charsPerToken: 4.0}
}

// WithCharsPerToken overrides the default ASCII chars-per-token ratio.
func (e *EstimatorTokenizer) WithCharsPerToken(ratio float64) *EstimatorTokenizer {
	if ratio > 0 {
		e.charsPerToken = ratio
	}
	return e
}

func (e *EstimatorTokenizer) runeCost(r rune) float64 {
	if isDenseScript(r) {
		return 1 / 1.5
	}
	return 1 / e.charsPerToken
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	totalChars := utf8.RuneCountInString(text)
	dense := 0
	for _, r := range text {
		if isDenseScript(r) {
			dense++
		}
	}
	estimated := int(float64(dense)/1.5 + float64(totalChars-dense)/e.charsPerToken)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *EstimatorTokenizer) Truncate(text string, maxTokens int) (string, error) {
	var total float64
	for i, r := range text {
		total += e.runeCost(r)
		if total > float64(maxTokens) {
			return trimToWordBoundary(text[:i]) + Ellipsis, nil
		}
	}
	return text, nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// isDenseScript reports Sinhala, Tamil and CJK runes.
func isDenseScript(r rune) bool {
	if r < utf8.RuneSelf {
		return false
	}
	return (r >= 0x0D80 && r <= 0x0DFF) || // Sinhala
		(r >= 0x0B80 && r <= 0x0BFF) || // Tamil
		(r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3000 && r <= 0x303F) // CJK Symbols and Punctuation
}
