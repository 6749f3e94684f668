// Package phonetic finds names that sound alike using Double Metaphone
// phonetic encoding combined with Jaro-Winkler string similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the input and of every known name. A name whose codes
//     overlap with the input's codes becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: phonetic candidates are scored on the
//     lower-cased strings and kept when the score reaches the phonetic
//     threshold (default 0.70). Names without phonetic overlap must reach
//     the stricter fuzzy threshold (default 0.85).
//
// It is used to surface duplicate spellings of the same person in the
// entity registry, such as "Sara Conor" next to "Sarah Connor".
package phonetic

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched name to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required for a name
// that shares no phonetic code with the input. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithTokenPairs controls whether the best score between any single input
// word and any single name word counts towards the similarity. It is on by
// default. Turn it off when comparing full names, otherwise every pair of
// people sharing a first name scores as a match.
func WithTokenPairs(enabled bool) Option {
	return func(m *Matcher) {
		m.tokenPairs = enabled
	}
}

// Candidate is one ranked look-alike returned by [Matcher.Rank].
type Candidate struct {
	// Name is the known name exactly as it was passed in.
	Name string

	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64

	// Phonetic reports whether the Double Metaphone codes overlapped.
	Phonetic bool
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	tokenPairs        bool
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		tokenPairs:        true,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the single best name for word. When nothing qualifies,
// corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, names []string) (corrected string, confidence float64, matched bool) {
	ranked := m.rank(word, names, false)
	if len(ranked) == 0 {
		return word, 0, false
	}
	return ranked[0].Name, ranked[0].Score, true
}

// Rank returns every known name that looks like name, best first. Phonetic
// candidates sort before pure fuzzy ones; equal scores sort by name. Names
// equal to the input (ignoring case) are skipped, so a registry can rank its
// own entries without reporting an entity as its own duplicate.
func (m *Matcher) Rank(name string, names []string) []Candidate {
	return m.rank(name, names, true)
}

func (m *Matcher) rank(word string, names []string, skipSelf bool) []Candidate {
	wordLower := strings.ToLower(strings.TrimSpace(word))
	if len(names) == 0 || wordLower == "" {
		return nil
	}
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	var out []Candidate
	for _, name := range names {
		nameLower := strings.ToLower(strings.TrimSpace(name))
		if nameLower == "" {
			continue
		}
		if skipSelf && nameLower == wordLower {
			continue
		}
		nameTokens := strings.Fields(nameLower)

		phonetic := codesOverlap(inputCodes, codesForTokens(nameTokens))
		score := m.bestJWScore(wordTokens, nameTokens, wordLower, nameLower)

		threshold := m.fuzzyThreshold
		if phonetic {
			threshold = m.phoneticThreshold
		}
		if score >= threshold {
			out = append(out, Candidate{Name: name, Score: score, Phonetic: phonetic})
		}
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.Phonetic != b.Phonetic {
			if a.Phonetic {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (too short, or no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the input
// and the name using up to three strategies:
//
//  1. Full-string comparison ("sara conor" vs "sarah connor").
//  2. Space-stripped comparison ("saraconor" vs "sarahconnor").
//  3. Best pairwise word comparison, when token pairs are enabled.
func (m *Matcher) bestJWScore(inputTokens, nameTokens []string, inputFull, nameFull string) float64 {
	score := matchr.JaroWinkler(inputFull, nameFull, false)

	if len(inputTokens) > 1 || len(nameTokens) > 1 {
		a := strings.Join(inputTokens, "")
		b := strings.Join(nameTokens, "")
		if s := matchr.JaroWinkler(a, b, false); s > score {
			score = s
		}
	}

	if !m.tokenPairs {
		return score
	}
	for _, it := range inputTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(it, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}
