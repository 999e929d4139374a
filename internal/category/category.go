// Package category defines the counseling categories a chat turn may be
// tagged with.
package category

import "strings"

// Category identifies a counseling area.
type Category string

const (
	None          Category = ""
	Career        Category = "career"
	Study         Category = "study"
	Relationships Category = "relationships"
)

// aliases maps accepted spellings, including the Japanese display names the
// clients send, to canonical categories.
var aliases = map[string]Category{
	"career":        Career,
	"進路":            Career,
	"study":         Study,
	"学習":            Study,
	"relationships": Relationships,
	"relationship":  Relationships,
	"人間関係":          Relationships,
}

// Normalize resolves a raw category string to its canonical form. Unknown
// values normalize to None.
func Normalize(raw string) Category {
	if c, ok := aliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return None
}

// Sensitive reports whether the category marks a conversation as high
// importance regardless of message content.
func (c Category) Sensitive() bool {
	return c == Career || c == Relationships
}
