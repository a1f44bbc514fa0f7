package profile

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLanguage is used when a person has never picked a language.
const DefaultLanguage = "en"

// Fields is the part of a profile collected by the wizard.
type Fields struct {
	Affiliation string
	Stage       string
	Skills      []string
	Interests   []string
	Goals       string
}

// Profile is the stored record describing one person.
type Profile struct {
	PersonID    int64
	DisplayName string
	Fields
	// Embedding is nil until a provider successfully embedded EmbeddingText(Fields).
	Embedding   []float32
	IsBlocked   bool
	Language    string
	LastUpdated time.Time
}

// HasEmbedding reports whether the profile can take part in similarity matching.
func (p *Profile) HasEmbedding() bool {
	return p != nil && len(p.Embedding) > 0
}

// Handle returns the name used to present the profile to other people.
func (p *Profile) Handle() string {
	if p == nil || strings.TrimSpace(p.DisplayName) == "" {
		return "Anonymous"
	}
	return "@" + strings.TrimPrefix(strings.TrimSpace(p.DisplayName), "@")
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Fields = p.Fields.Clone()
	if p.Embedding != nil {
		c.Embedding = make([]float32, len(p.Embedding))
		copy(c.Embedding, p.Embedding)
	}
	return &c
}

func (f Fields) Clone() Fields {
	c := f
	c.Skills = cloneList(f.Skills)
	c.Interests = cloneList(f.Interests)
	return c
}

// cloneList keeps the difference between a nil and an empty list.
func cloneList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// EmbeddingText builds the canonical text an embedding is computed from.
// Stage is informational and is not part of it.
func EmbeddingText(f Fields) string {
	return fmt.Sprintf("Affiliation: %s. Skills: %s. Interests: %s. Goals: %s.",
		strings.TrimSpace(f.Affiliation),
		strings.Join(f.Skills, ", "),
		strings.Join(f.Interests, ", "),
		strings.TrimSpace(f.Goals),
	)
}

// ParseList splits comma separated input, trims every fragment and drops empty ones.
// The result is never nil so that an empty answer is stored as an empty list.
func ParseList(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return items
}

// NormalizeLanguage maps unknown or empty codes to DefaultLanguage.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	switch code {
	case "en", "ru":
		return code
	default:
		return DefaultLanguage
	}
}
