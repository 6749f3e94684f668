// Package journal persists one markdown note per calendar day.
//
// Each entry lives at <dir>/<date>.md with a small YAML frontmatter followed
// by the human-readable note:
//
//	---
//	date: "2024-01-01"
//	created: "14:05"
//	language: en
//	detected_language: en
//	audio: memo.m4a
//	---
//	# 2024-01-01
//	14:05
//
//	<linked body>
//
// Saving an entry for a date replaces the previous entry in full.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the layout of entry dates and file names.
const DateLayout = "2006-01-02"

// CreatedLayout is the layout of the creation time written under the title.
const CreatedLayout = "15:04"

// ErrNotFound is returned by Load when no entry exists for the date.
var ErrNotFound = errors.New("journal entry not found")

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("journal: invalid date")

// Entry is one day's note.
type Entry struct {
	// Date is the ISO date (YYYY-MM-DD) and the entry's key.
	Date string

	// Created is the wall-clock creation time, formatted HH:MM.
	Created string

	// Body is the improved, link-rewritten text.
	Body string

	// Language is the code of the prompt template used for improvement.
	Language string

	// DetectedLanguage is the code the transcriber reported or the caller
	// forced.
	DetectedLanguage string

	// Audio is the base name of the source recording.
	Audio string
}

// Store persists journal entries.
//
// All implementations must be safe for concurrent use. Saves for the same
// date are serialised; saves for different dates are not.
type Store interface {
	// Save writes e, replacing any entry for e.Date, and returns where the
	// entry was stored.
	Save(ctx context.Context, e Entry) (location string, err error)

	// Load returns the entry for date.
	// Returns [ErrNotFound] when no entry exists.
	Load(ctx context.Context, date string) (Entry, error)

	// List returns the dates of all entries in ascending order.
	List(ctx context.Context) ([]string, error)
}

// ValidateDate checks that date is a real calendar day in YYYY-MM-DD form.
func ValidateDate(date string) error {
	t, err := time.Parse(DateLayout, date)
	if err != nil || t.Format(DateLayout) != date {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}
