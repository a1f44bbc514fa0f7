package matching

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spigell/peermatch/internal/profile"
)

const maxSharedItems = 2

// Phrasebook holds the clause templates used to explain a match.
type Phrasebook struct {
	Affiliation string
	Skills      string
	Interests   string
	Default     string
	Connective  string
}

var phrasebooks = map[string]Phrasebook{
	"en": {
		Affiliation: "you are both from %s",
		Skills:      "you share skills: %s",
		Interests:   "you have common interests: %s",
		Default:     "your profiles are semantically close",
		Connective:  " and ",
	},
	"ru": {
		Affiliation: "вы оба из %s",
		Skills:      "у вас общие навыки: %s",
		Interests:   "у вас общие интересы: %s",
		Default:     "ваши профили близки по смыслу",
		Connective:  " и ",
	},
}

// PhrasebookFor falls back to English for unknown languages.
func PhrasebookFor(lang string) Phrasebook {
	return phrasebooks[profile.NormalizeLanguage(lang)]
}

// Reason explains why candidate matched requester, in the requester's
// language. Shared items keep the requester's order.
func Reason(requester, candidate *profile.Profile) string {
	book := PhrasebookFor(requester.Language)

	var clauses []string
	if requester.Affiliation != "" && strings.EqualFold(
		strings.TrimSpace(requester.Affiliation),
		strings.TrimSpace(candidate.Affiliation),
	) {
		clauses = append(clauses, fmt.Sprintf(book.Affiliation, requester.Affiliation))
	}
	if shared := intersect(requester.Skills, candidate.Skills); len(shared) > 0 {
		clauses = append(clauses, fmt.Sprintf(book.Skills, strings.Join(shared, ", ")))
	}
	if shared := intersect(requester.Interests, candidate.Interests); len(shared) > 0 {
		clauses = append(clauses, fmt.Sprintf(book.Interests, strings.Join(shared, ", ")))
	}
	if len(clauses) == 0 {
		clauses = append(clauses, book.Default)
	}

	return capitalize(strings.Join(clauses, book.Connective))
}

func intersect(mine, theirs []string) []string {
	if len(mine) == 0 || len(theirs) == 0 {
		return nil
	}

	other := make(map[string]struct{}, len(theirs))
	for _, item := range theirs {
		other[item] = struct{}{}
	}

	seen := make(map[string]struct{}, maxSharedItems)
	var shared []string
	for _, item := range mine {
		if _, ok := other[item]; !ok {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		shared = append(shared, item)
		if len(shared) == maxSharedItems {
			break
		}
	}
	return shared
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
