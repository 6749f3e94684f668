package journal

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// frontmatter is the YAML header of an entry file.
type frontmatter struct {
	Date             string `yaml:"date"`
	Created          string `yaml:"created"`
	Language         string `yaml:"language,omitempty"`
	DetectedLanguage string `yaml:"detected_language,omitempty"`
	Audio            string `yaml:"audio,omitempty"`
}

// render encodes e as an entry file.
func render(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	fm := frontmatter{
		Date:             e.Date,
		Created:          e.Created,
		Language:         e.Language,
		DetectedLanguage: e.DetectedLanguage,
		Audio:            e.Audio,
	}
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("journal: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("journal: encode frontmatter: %w", err)
	}

	buf.WriteString(frontmatterDelim + "\n")
	fmt.Fprintf(&buf, "# %s\n%s\n\n", e.Date, e.Created)
	buf.WriteString(e.Body)
	return buf.Bytes(), nil
}

// parse decodes an entry file. Files without frontmatter take the date from
// the title line and the creation time from the line below it.
func parse(data []byte) (Entry, error) {
	var fm frontmatter
	rest := string(data)

	if after, ok := strings.CutPrefix(rest, frontmatterDelim+"\n"); ok {
		header, body, found := strings.Cut(after, "\n"+frontmatterDelim+"\n")
		if !found {
			return Entry{}, fmt.Errorf("journal: unterminated frontmatter")
		}
		if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
			return Entry{}, fmt.Errorf("journal: decode frontmatter: %w", err)
		}
		rest = body
	}

	e := Entry{
		Date:             fm.Date,
		Created:          fm.Created,
		Language:         fm.Language,
		DetectedLanguage: fm.DetectedLanguage,
		Audio:            fm.Audio,
	}

	title, afterTitle, ok := strings.Cut(rest, "\n")
	if !ok || !strings.HasPrefix(title, "# ") {
		e.Body = rest
		return e, nil
	}
	if e.Date == "" {
		e.Date = strings.TrimSpace(strings.TrimPrefix(title, "# "))
	}
	created, body, ok := strings.Cut(afterTitle, "\n")
	if !ok {
		if e.Created == "" {
			e.Created = strings.TrimSpace(afterTitle)
		}
		return e, nil
	}
	if e.Created == "" {
		e.Created = strings.TrimSpace(created)
	}
	e.Body = strings.TrimPrefix(body, "\n")
	return e, nil
}
