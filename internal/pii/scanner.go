// Package pii scans generated text for sensitive data before it leaves the
// system: SSNs, card numbers, API keys, private keys, passwords, tokens.
//
// This is a defense-in-depth leak detector, not a substitute for keeping
// secrets out of the model's context in the first place. It never fails a
// scan; the worst case is a missed detection.
package pii

import (
	"strings"

	"go.uber.org/zap"
)

// Category is the kind of sensitive data found.
type Category string

const (
	CategorySSN        Category = "SSN"
	CategoryCreditCard Category = "credit card"
	CategoryAPIKey     Category = "API key"
	CategoryPrivateKey Category = "private key"
	CategoryPassword   Category = "password"
	CategoryJWT        Category = "JWT token"
	CategoryAWSKey     Category = "AWS access key"
)

// Detection is a single sensitive-data match.
type Detection struct {
	Category Category `json:"category"`
	// Description is a brief note on what was found.
	Description string `json:"description"`
	// Offset is the byte offset of the match in the scanned text.
	Offset int `json:"offset"`
	// Redacted is the matched text, redacted for display.
	Redacted string `json:"redacted"`
}

// matchFunc searches text starting at from and returns the span of the
// next match, or ok=false when the category has no further matches.
type matchFunc func(text string, from int) (start, end int, ok bool)

// detectors run in a fixed order. Each matcher is a small dedicated
// scanner with its own edge rules; within a category matches never
// overlap, across categories they may.
var detectors = []struct {
	match       matchFunc
	category    Category
	description string
}{
	{matchSSN, CategorySSN, "SSN pattern"},
	{matchCreditCard, CategoryCreditCard, "credit card number"},
	{matchAPIKey, CategoryAPIKey, "API key"},
	{matchAWSKey, CategoryAWSKey, "AWS access key"},
	{matchPrivateKey, CategoryPrivateKey, "private key"},
	{matchJWT, CategoryJWT, "JWT token"},
	{matchPassword, CategoryPassword, "password value"},
}

// Scanner scans text for sensitive data patterns.
type Scanner struct {
	enabled bool
	logger  *zap.Logger
}

// NewScanner creates a scanner. A disabled scanner returns no detections
// for any input.
func NewScanner(enabled bool, logger *zap.Logger) *Scanner {
	return &Scanner{enabled: enabled, logger: logger}
}

// Scan returns all sensitive-data detections in text, in detector order.
func (s *Scanner) Scan(text string) []Detection {
	if !s.enabled || text == "" {
		return nil
	}

	var found []Detection
	for _, d := range detectors {
		from := 0
		for from < len(text) {
			start, end, ok := d.match(text, from)
			if !ok {
				break
			}
			found = append(found, Detection{
				Category:    d.category,
				Description: d.description,
				Offset:      start,
				Redacted:    redact(text[start:end]),
			})
			from = end
		}
	}

	if len(found) > 0 {
		cats := make([]string, len(found))
		for i, d := range found {
			cats[i] = string(d.Category)
		}
		s.logger.Warn("sensitive data detected",
			zap.Int("count", len(found)),
			zap.String("categories", strings.Join(cats, ", ")),
		)
	}
	return found
}

// redact replaces a match with a display-safe excerpt: short strings
// become all asterisks, longer ones keep their first two and up to their
// last two characters.
func redact(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + "…" + s[len(s)-2:]
}
