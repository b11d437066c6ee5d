package parser

import (
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-customers/models"
)

var (
	strippable = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s-]`)
	spaceRun   = regexp.MustCompile(`\s+`)
	hyphenRun  = regexp.MustCompile(`-+`)
)

// Normalize folds cosmetic differences out of s: case, whitespace runs,
// punctuation and repeated hyphens.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strippable.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	return hyphenRun.ReplaceAllString(s, "-")
}

// Fingerprint derives the identity key of r from its normalized name,
// country and industry.
func Fingerprint(r models.Record) string {
	return Normalize(r.Name) + "|" + Normalize(r.Country) + "|" + Normalize(r.Industry)
}
