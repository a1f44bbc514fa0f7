package matching

import (
	"github.com/spigell/peermatch/internal/profile"
)

// Candidate is one ranked profile. It is never persisted.
type Candidate struct {
	Profile *profile.Profile
	Score   float64
	Reason  string
}

// Filter is a single step of the ranking pipeline.
type Filter interface {
	Name() string
	Apply(requester *profile.Profile, in []Candidate) []Candidate
}

// Step describes the result of executing a pipeline step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// StepReport pairs a step name with its counts.
type StepReport struct {
	Name string
	Step
}

func keep(in []Candidate, ok func(Candidate) bool) []Candidate {
	out := in[:0]
	for _, c := range in {
		if ok(c) {
			out = append(out, c)
		}
	}
	return out
}

type excludeSelf struct{}

func (excludeSelf) Name() string { return "exclude_self" }

func (excludeSelf) Apply(requester *profile.Profile, in []Candidate) []Candidate {
	return keep(in, func(c Candidate) bool { return c.Profile.PersonID != requester.PersonID })
}

type excludeBlocked struct{}

func (excludeBlocked) Name() string { return "exclude_blocked" }

func (excludeBlocked) Apply(_ *profile.Profile, in []Candidate) []Candidate {
	return keep(in, func(c Candidate) bool { return !c.Profile.IsBlocked })
}

// requireEmbedding drops candidates that cannot be scored, including vectors
// from a provider with a different dimension.
type requireEmbedding struct{}

func (requireEmbedding) Name() string { return "require_embedding" }

func (requireEmbedding) Apply(requester *profile.Profile, in []Candidate) []Candidate {
	dim := len(requester.Embedding)
	return keep(in, func(c Candidate) bool {
		return c.Profile.HasEmbedding() && len(c.Profile.Embedding) == dim
	})
}

type score struct{}

func (score) Name() string { return "score" }

func (score) Apply(requester *profile.Profile, in []Candidate) []Candidate {
	for i := range in {
		in[i].Score = Similarity(requester.Embedding, in[i].Profile.Embedding)
	}
	return in
}

type threshold struct {
	min float64
}

func (threshold) Name() string { return "threshold" }

func (t threshold) Apply(_ *profile.Profile, in []Candidate) []Candidate {
	return keep(in, func(c Candidate) bool { return c.Score > t.min })
}

// Pipeline returns the default ranking steps in execution order.
func Pipeline(minScore float64) []Filter {
	return []Filter{
		excludeSelf{},
		excludeBlocked{},
		requireEmbedding{},
		score{},
		threshold{min: minScore},
	}
}
