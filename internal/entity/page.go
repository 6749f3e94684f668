package entity

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// pageHeader is the YAML frontmatter of an entity page.
type pageHeader struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
	Kind Kind   `yaml:"kind"`
}

// mentionLine matches "- [2024-01-01](../journal_notes/2024-01-01.md): context".
// The context part is optional on hand-edited pages.
var mentionLine = regexp.MustCompile(`^- \[([^\]]+)\]\(([^)]*)\)(?::\s?(.*))?$`)

// renderPage produces the markdown page for e:
//
//	---
//	name: Sarah Connor
//	slug: Sarah_Connor
//	kind: person
//	---
//	# Sarah Connor
//
//	Type: person
//
//	## Mentions
//
//	- [2024-01-01](../journal_notes/2024-01-01.md): Mentioned in this entry
func renderPage(e Entity) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(pageHeader{Name: e.Name, Slug: e.Slug, Kind: e.Kind}); err != nil {
		return nil, fmt.Errorf("entity: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("entity: encode frontmatter: %w", err)
	}

	buf.WriteString(frontmatterDelim + "\n")
	fmt.Fprintf(&buf, "# %s\n\nType: %s\n\n## Mentions\n\n", e.Name, e.Kind)
	for _, m := range e.Mentions {
		fmt.Fprintf(&buf, "- [%s](%s): %s\n", m.Date, m.Link, m.Context)
	}
	return buf.Bytes(), nil
}

// parsePage reads a page written by [renderPage]. Pages without frontmatter
// are accepted: the name then comes from the first "# " heading and the kind
// from the "Type:" line. slug is used when the page does not name its own.
func parsePage(data []byte, slug string) (Entity, error) {
	var hdr pageHeader
	body := data

	if rest, ok := bytes.CutPrefix(data, []byte(frontmatterDelim+"\n")); ok {
		fm, after, found := bytes.Cut(rest, []byte("\n"+frontmatterDelim+"\n"))
		if !found {
			return Entity{}, fmt.Errorf("entity: parse page %s: unterminated frontmatter", slug)
		}
		if err := yaml.Unmarshal(fm, &hdr); err != nil {
			return Entity{}, fmt.Errorf("entity: parse page %s: frontmatter: %w", slug, err)
		}
		body = after
	}

	e := Entity{Name: hdr.Name, Slug: hdr.Slug, Kind: hdr.Kind}
	inMentions := false

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "# "):
			if e.Name == "" {
				e.Name = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			}
		case strings.HasPrefix(line, "Type:"):
			if e.Kind == "" {
				e.Kind = Kind(strings.TrimSpace(strings.TrimPrefix(line, "Type:")))
			}
		case strings.HasPrefix(line, "## "):
			inMentions = strings.TrimSpace(strings.TrimPrefix(line, "## ")) == "Mentions"
		case inMentions:
			if m := mentionLine.FindStringSubmatch(line); m != nil {
				e.Mentions = append(e.Mentions, Mention{Date: m[1], Link: m[2], Context: m[3]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Entity{}, fmt.Errorf("entity: parse page %s: %w", slug, err)
	}

	if e.Name == "" {
		return Entity{}, fmt.Errorf("entity: parse page %s: no name", slug)
	}
	if e.Slug == "" {
		e.Slug = slug
	}
	e.Kind = kindOrDefault(e.Kind)
	return e, nil
}
