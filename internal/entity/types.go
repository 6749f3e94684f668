// Package entity keeps one durable record per person or thing mentioned in
// the journal, together with an append-only log of the entries that
// mentioned it.
//
// Records are keyed by [Slug]. The [FileRegistry] stores each record as a
// markdown page next to the journal notes so the knowledge base stays
// readable in any editor; the [MemRegistry] keeps the same data in memory
// for tests and dry runs.
//
// All registry operations are safe for concurrent use.
package entity

import "strings"

// Kind classifies an entity. The set is open: extractors may produce kinds
// beyond the constants below and the registry stores them verbatim.
type Kind string

const (
	// KindPerson is produced by every extractor. It is also the kind
	// recorded when a candidate carries none.
	KindPerson Kind = "person"

	// KindLocation represents a place.
	KindLocation Kind = "location"

	// KindOrganization represents a company, school, team or similar group.
	KindOrganization Kind = "organization"

	// KindMisc covers everything a named-entity model could not place.
	KindMisc Kind = "misc"
)

// IsKnown reports whether k is one of the predefined kinds.
func (k Kind) IsKnown() bool {
	switch k {
	case KindPerson, KindLocation, KindOrganization, KindMisc:
		return true
	}
	return false
}

// Candidate is a named entity found in a piece of text, before it has been
// recorded anywhere.
type Candidate struct {
	// Name is the display form exactly as it appeared in the text.
	Name string

	// Kind classifies the candidate. Empty means [KindPerson].
	Kind Kind
}

// Slug returns the identity key for the candidate's name.
func (c Candidate) Slug() string { return Slug(c.Name) }

// Mention is one reference from a journal entry to an entity.
type Mention struct {
	// Date is the ISO date (YYYY-MM-DD) of the mentioning entry.
	Date string

	// Context is a short snippet describing the mention.
	Context string

	// Link is the relative path from the entity page to the entry. Empty
	// for records that never touched disk.
	Link string
}

// Entity is the durable record of a single person or thing.
type Entity struct {
	// Name is the canonical display string, as first observed.
	Name string

	// Slug is the identifier-safe form of Name and the record's key.
	Slug string

	// Kind is the classification recorded when the entity was created.
	Kind Kind

	// Mentions is ordered by processing order and only ever grows.
	Mentions []Mention
}

// slugReplacer maps characters that are unsafe in file names or inside
// wiki-link markup to a hyphen.
var slugReplacer = strings.NewReplacer(
	"/", "-", `\`, "-", ":", "-", "*", "-", "?", "-",
	`"`, "-", "<", "-", ">", "-", "|", "-", "[", "-", "]", "-",
)

// Slug derives the identity key of a display name: runs of whitespace
// become a single underscore and path or markup characters become hyphens.
// "Sarah Connor" becomes "Sarah_Connor".
func Slug(name string) string {
	return slugReplacer.Replace(strings.Join(strings.Fields(name), "_"))
}
