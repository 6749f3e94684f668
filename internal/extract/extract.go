// Package extract finds candidate named entities in journal text.
//
// Two extractors are provided. [Capitalized] is a pure heuristic that treats
// runs of capitalised words as names; it never fails and needs no model.
// [NER] runs a token-classification model in process through hugot and
// distinguishes people, places and organisations.
package extract

import (
	"context"
	"strings"

	"github.com/MrWong99/audiojournal/internal/entity"
)

// Extractor derives candidate entities from text. Results are deduplicated by
// name and keep first-seen order.
//
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]entity.Candidate, error)
}

// Func adapts an ordinary function to the [Extractor] interface.
type Func func(ctx context.Context, text string) ([]entity.Candidate, error)

// Extract implements [Extractor].
func (f Func) Extract(ctx context.Context, text string) ([]entity.Candidate, error) {
	return f(ctx, text)
}

// DefaultDenylist holds tokens that look like names but never are: the
// first-person pronoun and the weekday names in English and Ukrainian.
var DefaultDenylist = []string{
	"I",
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"Я",
	"Понеділок", "Вівторок", "Середа", "Четвер", "П'ятниця", "Субота", "Неділя",
}

// denylist is an immutable set of suppressed candidate names.
type denylist map[string]struct{}

func newDenylist(extra []string) denylist {
	d := make(denylist, len(DefaultDenylist)+len(extra))
	for _, w := range DefaultDenylist {
		d[denyKey(w)] = struct{}{}
	}
	for _, w := range extra {
		if w = strings.TrimSpace(w); w != "" {
			d[denyKey(w)] = struct{}{}
		}
	}
	return d
}

func (d denylist) contains(name string) bool {
	_, ok := d[denyKey(name)]
	return ok
}

// apostrophes folds the typographic apostrophes onto the ASCII one.
var apostrophes = strings.NewReplacer("\u2019", "'", "\u02BC", "'")

// denyKey spells all apostrophe variants of a name the same way.
func denyKey(name string) string {
	return apostrophes.Replace(name)
}

// collector deduplicates candidates by name in first-seen order and applies
// the denylist.
type collector struct {
	deny denylist
	seen map[string]struct{}
	out  []entity.Candidate
}

func newCollector(deny denylist) *collector {
	return &collector{deny: deny, seen: make(map[string]struct{})}
}

func (c *collector) add(name string, kind entity.Kind) {
	if name == "" || c.deny.contains(name) {
		return
	}
	if _, dup := c.seen[name]; dup {
		return
	}
	c.seen[name] = struct{}{}
	c.out = append(c.out, entity.Candidate{Name: name, Kind: kind})
}
