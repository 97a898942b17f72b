// Package textnorm builds the normalized search keys and keyword sets used by
// every catalog lookup. All indexing and comparison goes through Normalize so
// that matching stays case and accent insensitive.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the rune length a token must exceed to be indexed.
const MinTokenLength = 2

// Normalize lower-cases s, strips combining accent marks, trims it and
// collapses internal whitespace runs to a single space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	lowered := strings.ToLower(s)

	// transform chains are stateful, build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}
	return strings.Join(strings.Fields(stripped), " ")
}

// Tokens splits the normalized form of s on anything that is not a letter or
// digit and keeps tokens longer than MinTokenLength runes, in order of
// appearance and without duplicates.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= MinTokenLength || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Keywords returns the de-duplicated token set of all non-empty fields.
func Keywords(fields ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		for _, tok := range Tokens(f) {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// KeywordsPtr is Keywords for optional fields.
func KeywordsPtr(required string, optional ...*string) []string {
	fields := []string{required}
	for _, p := range optional {
		if p != nil {
			fields = append(fields, *p)
		}
	}
	return Keywords(fields...)
}

// Contains reports whether the normalized haystack contains the normalized needle.
func Contains(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}
