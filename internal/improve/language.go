package improve

import "strings"

// Language selects the prompt template used to improve a transcript.
type Language string

const (
	// English is the default template.
	English Language = "en"

	// Ukrainian uses a prompt written in Ukrainian so the model answers in
	// the same language.
	Ukrainian Language = "uk"

	// DefaultLanguage is used for every code without a dedicated template.
	DefaultLanguage = English
)

// languageAliases maps the spellings transcribers and users commonly produce
// to a template language.
var languageAliases = map[string]Language{
	"en":         English,
	"eng":        English,
	"english":    English,
	"uk":         Ukrainian,
	"ua":         Ukrainian,
	"ukr":        Ukrainian,
	"ukrainian":  Ukrainian,
	"українська": Ukrainian,
}

// ParseLanguage maps a language code or name to the template language,
// ignoring case and region suffixes ("en-US", "uk_UA"). Unknown or empty
// codes fall back to [DefaultLanguage].
func ParseLanguage(code string) Language {
	l, _ := lookupLanguage(code)
	return l
}

// Supported reports whether code names a language with its own template.
func Supported(code string) bool {
	_, ok := lookupLanguage(code)
	return ok
}

func lookupLanguage(code string) (Language, bool) {
	c := strings.ToLower(strings.TrimSpace(code))
	if base, _, found := strings.Cut(c, "-"); found {
		c = base
	} else if base, _, found := strings.Cut(c, "_"); found {
		c = base
	}
	if l, ok := languageAliases[c]; ok {
		return l, true
	}
	return DefaultLanguage, false
}
