package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minWordLen        = 2
	minSingleWordLen  = 3
	maxVariantRetries = 2
)

var variantSeparators = []string{" ", "-", ".", "_", ""}

// foldDiacritics decomposes runes and drops combining marks, "é" becomes "e"
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	res, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return res
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-' || r == '_' || r == '.'
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// Normalize lower-cases query, strips diacritics and punctuation and splits it into words.
// Words shorter than 2 characters are discarded.
func Normalize(query string) []string {
	folded := foldDiacritics(strings.ToLower(query))
	var words []string
	for _, f := range strings.FieldsFunc(folded, isSeparator) {
		w := stripPunctuation(f)
		if len([]rune(w)) < minWordLen {
			continue
		}
		words = append(words, w)
	}
	return words
}

// GenerateVariants returns surface forms of the same query used for fuzzy retries.
// First variant is always the original query.
func GenerateVariants(query string) []string {
	query = strings.TrimSpace(query)
	seen := map[string]bool{}
	var variants []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}
	add(query)
	words := Normalize(query)
	if len(words) == 0 {
		return variants
	}
	for _, sep := range variantSeparators {
		add(strings.Join(words, sep))
	}
	if len([]rune(words[0])) >= minSingleWordLen {
		add(words[0])
	}
	return variants
}

// RetryVariants returns up to two variants that differ from the original query
func RetryVariants(variants []string) []string {
	if len(variants) <= 1 {
		return nil
	}
	rest := variants[1:]
	if len(rest) > maxVariantRetries {
		rest = rest[:maxVariantRetries]
	}
	return rest
}

// MatchesAllWords checks that every query word appears in normalized title.
// Word is matched either against space separated title words or against
// their concatenation, so "hellvisback" matches "Hell VIS Back".
func MatchesAllWords(title string, words []string) bool {
	tw := Normalize(title)
	spaced := strings.Join(tw, " ")
	joined := strings.Join(tw, "")
	for _, w := range words {
		w = strings.ToLower(w)
		if !strings.Contains(spaced, w) && !strings.Contains(joined, w) {
			return false
		}
	}
	return true
}
