package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/peermatch/internal/profile"
)

// ErrNotFound is returned when a profile is absent.
var ErrNotFound = errors.New("profile not found")

// Store persists profiles keyed by person id.
type Store interface {
	Get(ctx context.Context, personID int64) (*profile.Profile, error)
	// Put inserts or replaces the profile and sets LastUpdated.
	Put(ctx context.Context, p *profile.Profile) error
	Delete(ctx context.Context, personID int64) error
	ListExcept(ctx context.Context, personID int64, excludeBlocked bool) ([]*profile.Profile, error)
	ListMissingEmbedding(ctx context.Context) ([]*profile.Profile, error)
	// SetEmbedding attaches a vector only when the profile was not written after seen.
	SetEmbedding(ctx context.Context, personID int64, vector []float32, seen time.Time) (bool, error)
	Block(ctx context.Context, personID int64) error
	SetLanguage(ctx context.Context, personID int64, code string) error
	GetLanguage(ctx context.Context, personID int64) (string, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Ledger records when a person last used a rate limited action.
type Ledger interface {
	LastUsed(ctx context.Context, personID int64, action string) (time.Time, bool, error)
	SetLastUsed(ctx context.Context, personID int64, action string, at time.Time) error
	Forget(ctx context.Context, personID int64) error
}

// Stats summarizes the stored population.
type Stats struct {
	TotalUsers int
	TopSkill   string
}

const noTopSkill = "None"

// TopSkill picks the most frequent skill. Ties go to the skill seen first.
func TopSkill(skillLists [][]string) string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, skills := range skillLists {
		for _, s := range skills {
			if _, ok := counts[s]; !ok {
				order = append(order, s)
			}
			counts[s]++
		}
	}

	top, best := noTopSkill, 0
	for _, s := range order {
		if counts[s] > best {
			top, best = s, counts[s]
		}
	}
	return top
}
