// Package wikilink rewrites journal text so that entity mentions become
// wiki-style cross references of the form [[slug|display name]].
package wikilink

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/audiojournal/internal/entity"
)

const (
	openLink  = "[["
	closeLink = "]]"
)

// noRune stands in for the text boundary when looking at neighbours.
const noRune = -1

// Token returns the cross-reference markup for name.
func Token(name string) string {
	return openLink + entity.Slug(name) + "|" + name + closeLink
}

// Link replaces every whole-word, case-sensitive occurrence of each entity's
// name with its [Token]. "Anna" does not match inside "Annabelle".
//
// The text is scanned once from left to right. At each position the longest
// matching name wins, and existing [[...]] tokens are copied verbatim and
// never searched, so Link(Link(t, e), e) == Link(t, e). Word boundaries
// around an existing token are judged by the token's display text, which
// keeps a second pass from seeing boundaries the first pass did not.
//
// Names that are empty or contain link markup are ignored.
func Link(text string, entities []entity.Candidate) string {
	names := linkableNames(entities)
	if len(names) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + len(names)*16)

	prev := rune(noRune)
	for i := 0; i < len(text); {
		if tok, display, ok := linkAt(text, i); ok {
			b.WriteString(tok)
			prev = lastRune(display, ']')
			i += len(tok)
			continue
		}

		if name, ok := matchAt(text, i, prev, names); ok {
			b.WriteString(Token(name))
			prev = lastRune(name, prev)
			i += len(name)
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		b.WriteString(text[i : i+size])
		prev = r
		i += size
	}
	return b.String()
}

// linkableNames returns the distinct usable names, longest first. Equal
// lengths are ordered lexically so the result is deterministic.
func linkableNames(entities []entity.Candidate) []string {
	seen := make(map[string]struct{}, len(entities))
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		n := e.Name
		if n == "" || entity.Slug(n) == "" || strings.Contains(n, openLink) || strings.Contains(n, closeLink) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}

// matchAt returns the longest name that occurs at text[i:] as a whole word,
// given the display rune preceding position i.
func matchAt(text string, i int, prev rune, names []string) (string, bool) {
	for _, name := range names {
		if !strings.HasPrefix(text[i:], name) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(name)
		last, _ := utf8.DecodeLastRuneInString(name)
		if isWord(prev) == isWord(first) {
			continue
		}
		if isWord(last) == isWord(nextDisplayRune(text, i+len(name))) {
			continue
		}
		return name, true
	}
	return "", false
}

// linkAt reports whether a complete [[...]] token starts at text[i:] and
// returns it together with its display text.
func linkAt(text string, i int) (tok, display string, ok bool) {
	if !strings.HasPrefix(text[i:], openLink) {
		return "", "", false
	}
	end := strings.Index(text[i+len(openLink):], closeLink)
	if end < 0 {
		return "", "", false
	}
	inner := text[i+len(openLink) : i+len(openLink)+end]
	display = inner
	if _, after, found := strings.Cut(inner, "|"); found {
		display = after
	}
	return text[i : i+len(openLink)+end+len(closeLink)], display, true
}

// nextDisplayRune returns the first rune a reader sees at text[j:]. For an
// existing token that is the first rune of its display text.
func nextDisplayRune(text string, j int) rune {
	if j >= len(text) {
		return noRune
	}
	if _, display, ok := linkAt(text, j); ok {
		if display == "" {
			return '['
		}
		r, _ := utf8.DecodeRuneInString(display)
		return r
	}
	r, _ := utf8.DecodeRuneInString(text[j:])
	return r
}

func lastRune(s string, fallback rune) rune {
	if s == "" {
		return fallback
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// isWord reports whether r is a word character in the regular-expression
// sense, extended to every script. The text boundary is not.
func isWord(r rune) bool {
	if r == noRune {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r)
}
