package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks a [Candidate] before it is recorded.
//
// Rules:
//   - Name must contain at least one non-space character.
//   - The derived slug must be usable as a file name ("." and ".." are not).
func Validate(c Candidate) error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	} else if err := validateSlug(Slug(c.Name)); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidName, errors.Join(errs...))
}

// validateSlug rejects slugs that would escape or alias the registry
// directory.
func validateSlug(slug string) error {
	switch {
	case slug == "":
		return errors.New("slug must not be empty")
	case slug == "." || slug == "..":
		return fmt.Errorf("slug %q is reserved", slug)
	case strings.ContainsAny(slug, `/\`):
		return fmt.Errorf("slug %q contains a path separator", slug)
	}
	return nil
}
