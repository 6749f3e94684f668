package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/MrWong99/audiojournal/internal/entity"
)

// Compile-time assertion that Capitalized implements Extractor.
var _ Extractor = (*Capitalized)(nil)

// Capitalized extracts maximal runs of capitalised words separated by single
// spaces. A capitalised word is a whole word whose first letter is upper case
// and whose remaining letters (at least one) are all lower case, so "Sarah"
// qualifies while "I", "NASA" and "McDonald" do not. Letters from any script
// are recognised.
//
// Every candidate is tagged [entity.KindPerson]. Sentence-initial words are
// reported too; the heuristic trades precision for needing no model.
type Capitalized struct {
	deny denylist
}

// NewCapitalized returns a heuristic extractor that suppresses
// [DefaultDenylist] plus any extra tokens.
func NewCapitalized(extraDenylist ...string) *Capitalized {
	return &Capitalized{deny: newDenylist(extraDenylist)}
}

// Extract implements [Extractor]. It never returns an error.
func (c *Capitalized) Extract(_ context.Context, text string) ([]entity.Candidate, error) {
	col := newCollector(c.deny)
	for _, run := range capitalizedRuns(text) {
		col.add(run, entity.KindPerson)
	}
	return col.out, nil
}

// capitalizedRuns returns every maximal run of capitalised words joined by
// exactly one space, in text order.
func capitalizedRuns(text string) []string {
	var (
		runs []string
		cur  []string
		// gapOK reports whether the characters since the last word in cur
		// were exactly one space.
		gapOK bool
	)
	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}

	rs := []rune(text)
	for i := 0; i < len(rs); {
		if !isWordRune(rs[i]) {
			if len(cur) > 0 && rs[i] == ' ' && !gapOK && i > 0 && isWordRune(rs[i-1]) {
				gapOK = true
			} else {
				gapOK = false
				flush()
			}
			i++
			continue
		}

		j := i
		for j < len(rs) && (isWordRune(rs[j]) || innerApostrophe(rs, j)) {
			j++
		}
		word := trimPossessive(rs[i:j])
		if isCapitalized(word) {
			if len(cur) > 0 && !gapOK {
				flush()
			}
			cur = append(cur, string(word))
			if len(word) < j-i {
				// A possessive ends the name.
				flush()
			}
		} else {
			flush()
		}
		gapOK = false
		i = j
	}
	flush()
	return runs
}

// isCapitalized reports whether word is one upper-case letter followed by one
// or more lower-case letters. Apostrophes are skipped and the letter after one
// may be upper case, so "Мар'яна" and "O'Neil" qualify.
func isCapitalized(word []rune) bool {
	if len(word) < 2 || !unicode.IsUpper(word[0]) {
		return false
	}
	letters := 1
	for i := 1; i < len(word); i++ {
		r := word[i]
		switch {
		case isApostrophe(r):
			continue
		case unicode.IsLower(r):
		case unicode.IsUpper(r) && isApostrophe(word[i-1]):
		default:
			return false
		}
		letters++
	}
	return letters >= 2
}

// isApostrophe reports whether r is one of the apostrophes used inside
// English and Ukrainian words.
func isApostrophe(r rune) bool {
	return r == '\'' || r == '’' || r == 'ʼ'
}

// innerApostrophe reports whether rs[i] is an apostrophe between two letters.
func innerApostrophe(rs []rune, i int) bool {
	return isApostrophe(rs[i]) && i > 0 && i+1 < len(rs) &&
		unicode.IsLetter(rs[i-1]) && unicode.IsLetter(rs[i+1]) && !isApostrophe(rs[i-1])
}

// trimPossessive drops an English possessive suffix and trailing
// apostrophes, so "Bob's" yields "Bob".
func trimPossessive(word []rune) []rune {
	n := len(word)
	if n > 2 && isApostrophe(word[n-2]) && (word[n-1] == 's' || word[n-1] == 'S') {
		n -= 2
	}
	for n > 0 && isApostrophe(word[n-1]) {
		n--
	}
	return word[:n]
}

// isWordRune reports whether r belongs to a word: a letter, a digit, an
// underscore or a combining mark.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.Is(unicode.Mn, r)
}
