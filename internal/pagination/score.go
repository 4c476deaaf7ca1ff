package pagination

import (
	"strings"
	"unicode"

	"github.com/nerrad567/facility-core/internal/infrastructure/database"
)

// ScoreFunction is the name Score is registered under in SQLite.
const ScoreFunction = "fuzzy_score"

// Autocomplete matching parameters.
const (
	// fuzzyMinLength is the shortest term token allowed a one-edit match.
	fuzzyMinLength = 4
	// prefixLength characters of a token must match exactly before an edit is tolerated.
	prefixLength = 3
	maxEdits     = 1
)

// Relevance tiers. The position bonus never exceeds the gap between tiers.
const (
	tierExact     = 4.0
	tierPrefix    = 3.0
	tierFuzzy     = 2.0
	tierSubstring = 1.0
	maxBonus      = 0.5
)

func init() {
	database.RegisterFunction(ScoreFunction, Score, true)
}

// Score ranks text against an autocomplete search term. Term tokens must
// match words of text in the same order (tokens need not be adjacent); each
// token matches a word exactly, as a prefix, or, for tokens of at least four
// characters, within one edit once the first three characters agree. When
// no such sequence exists, a plain substring match scores lowest.
// Zero means no match.
func Score(text, term string) float64 {
	terms := tokenize(term)
	if len(terms) == 0 {
		return 0
	}
	words := tokenize(text)

	next, first := 0, -1
	var total float64
	for _, t := range terms {
		best, at := 0.0, -1
		for i := next; i < len(words); i++ {
			if q := matchWord(words[i], t); q > best {
				best, at = q, i
				if q == tierExact {
					break
				}
			}
		}
		if at < 0 {
			total = 0
			break
		}
		if first < 0 {
			first = at
		}
		total += best
		next = at + 1
	}

	if total > 0 {
		return total/float64(len(terms)) + maxBonus/float64(1+first)
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(term))) {
		return tierSubstring
	}
	return 0
}

func matchWord(word, token []rune) float64 {
	switch {
	case string(word) == string(token):
		return tierExact
	case hasPrefix(word, token):
		return tierPrefix
	case fuzzyPrefix(word, token):
		return tierFuzzy
	}
	return 0
}

// fuzzyPrefix reports whether token is within maxEdits of word or of a
// prefix of word whose length is within maxEdits of the token's.
func fuzzyPrefix(word, token []rune) bool {
	if len(token) < fuzzyMinLength || len(word) < prefixLength {
		return false
	}
	if !hasPrefix(word, token[:prefixLength]) {
		return false
	}
	for n := len(token) - maxEdits; n <= len(token)+maxEdits; n++ {
		if n < prefixLength || n > len(word) {
			continue
		}
		if editDistance(word[:n], token) <= maxEdits {
			return true
		}
	}
	return false
}

func hasPrefix(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func tokenize(s string) [][]rune {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([][]rune, len(fields))
	for i, f := range fields {
		out[i] = []rune(f)
	}
	return out
}
