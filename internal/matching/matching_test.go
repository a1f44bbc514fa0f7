package matching

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/store/memory"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 1},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "zero vector", a: []float32{0, 0, 0}, b: []float32{1, 2, 3}, want: 0},
		{name: "both zero", a: []float32{0, 0}, b: []float32{0, 0}, want: 0},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %f, got %f", tt.want, got)
			}
			if back := Similarity(tt.b, tt.a); back != got {
				t.Fatalf("similarity is not symmetric: %f vs %f", got, back)
			}
		})
	}
}

func TestSimilarityIsExactlyZeroForZeroVectors(t *testing.T) {
	if got := Similarity([]float32{0, 0}, []float32{0.3, -0.1}); got != 0.0 {
		t.Fatalf("expected exact zero, got %v", got)
	}
}

func person(id int64, vec ...float32) *profile.Profile {
	return &profile.Profile{
		PersonID:    id,
		DisplayName: "p" + string(rune('a'+id)),
		Fields: profile.Fields{
			Affiliation: "Uni",
			Skills:      []string{},
			Interests:   []string{},
		},
		Embedding: vec,
		Language:  "en",
	}
}

func TestRankPipeline(t *testing.T) {
	requester := person(1, 1, 0)

	blocked := person(4, 1, 0)
	blocked.IsBlocked = true

	candidates := []*profile.Profile{
		person(1, 1, 0),     // self
		person(2, 0.5, 0.5), // ~0.707
		person(3, 1, 0.01),  // ~1
		blocked,
		person(5),          // no embedding
		person(6, 1, 0, 0), // dimension mismatch
		person(7, 0.1, 1),  // ~0.0995, below threshold
		person(8, 0, 1),    // 0
		person(9, -1, 0),   // -1
		person(10, 0.5, 0.5),
	}

	matches := New(nil).Rank(requester, candidates)

	var ids []int64
	for _, m := range matches {
		ids = append(ids, m.Profile.PersonID)
		if m.Profile.IsBlocked {
			t.Fatalf("blocked profile %d returned", m.Profile.PersonID)
		}
		if m.Profile.PersonID == requester.PersonID {
			t.Fatalf("requester returned as own match")
		}
		if m.Score <= DefaultThreshold {
			t.Fatalf("score %f not above threshold", m.Score)
		}
		if m.Reason == "" {
			t.Fatalf("missing reason for %d", m.Profile.PersonID)
		}
	}

	want := []int64{3, 2, 10}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v (stable order for ties), got %v", want, ids)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("results not sorted: %v", matches)
		}
	}
}

func TestRankLimitAndThreshold(t *testing.T) {
	requester := person(1, 1, 0)
	candidates := []*profile.Profile{person(2, 1, 0.2), person(3, 1, 0.1), person(4, 1, 1)}

	matches := New(nil, WithLimit(2)).Rank(requester, candidates)
	if len(matches) != 2 || matches[0].Profile.PersonID != 3 || matches[1].Profile.PersonID != 2 {
		t.Fatalf("unexpected limited result: %+v", matches)
	}

	matches = New(nil, WithThreshold(0.9)).Rank(requester, candidates)
	if len(matches) != 2 {
		t.Fatalf("expected candidate 4 (score ~0.707) to be dropped, got %d matches", len(matches))
	}
}

func TestReasonNamesAffiliationAndSharedSkill(t *testing.T) {
	requester := &profile.Profile{
		Fields: profile.Fields{
			Affiliation: "MIT",
			Skills:      []string{"Python", "Go"},
			Interests:   []string{"Chess"},
		},
		Language: "en",
	}
	candidate := &profile.Profile{
		Fields: profile.Fields{
			Affiliation: "mit",
			Skills:      []string{"Go", "Rust"},
			Interests:   []string{"Music"},
		},
	}

	reason := Reason(requester, candidate)
	book := PhrasebookFor("en")

	if !strings.Contains(reason, "MIT") {
		t.Fatalf("expected affiliation clause in %q", reason)
	}
	if !strings.Contains(reason, "Go") || strings.Contains(reason, "Python") || strings.Contains(reason, "Rust") {
		t.Fatalf("expected only shared skill Go in %q", reason)
	}
	if strings.Contains(reason, "interests") {
		t.Fatalf("expected no interests clause in %q", reason)
	}
	if !strings.Contains(reason, book.Connective) {
		t.Fatalf("expected clauses to be joined in %q", reason)
	}
	if reason[0] != 'Y' {
		t.Fatalf("expected capitalized sentence, got %q", reason)
	}
}

func TestReasonVariants(t *testing.T) {
	tests := []struct {
		name      string
		requester profile.Fields
		candidate profile.Fields
		lang      string
		want      string
	}{
		{
			name:      "default clause",
			requester: profile.Fields{Affiliation: "A", Skills: []string{"Go"}},
			candidate: profile.Fields{Affiliation: "B", Skills: []string{"go"}},
			lang:      "en",
			want:      "Your profiles are semantically close",
		},
		{
			name:      "at most two shared items in requester order",
			requester: profile.Fields{Interests: []string{"AI", "Chess", "Music", "AI"}},
			candidate: profile.Fields{Interests: []string{"Music", "Chess", "AI"}},
			lang:      "en",
			want:      "You have common interests: AI, Chess",
		},
		{
			name:      "russian phrasebook",
			requester: profile.Fields{Affiliation: "МГУ", Skills: []string{"Go"}},
			candidate: profile.Fields{Affiliation: "мгу", Skills: []string{"Go"}},
			lang:      "ru",
			want:      "Вы оба из МГУ и у вас общие навыки: Go",
		},
		{
			name:      "unknown language falls back to english",
			requester: profile.Fields{},
			candidate: profile.Fields{},
			lang:      "de",
			want:      "Your profiles are semantically close",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reason(
				&profile.Profile{Fields: tt.requester, Language: tt.lang},
				&profile.Profile{Fields: tt.candidate},
			)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFindMatches(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()

	noVector := person(2)
	for _, p := range []*profile.Profile{person(1, 1, 0), noVector, person(3, 1, 0.2), person(4, 0, 1)} {
		if err := st.Put(ctx, p); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := st.Block(ctx, 4); err != nil {
		t.Fatalf("block: %v", err)
	}

	engine := New(st)

	result, err := engine.FindMatches(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0].Profile.PersonID != 3 {
		t.Fatalf("unexpected matches: %+v", result.Matches)
	}
	if result.Requester.PersonID != 1 {
		t.Fatalf("unexpected requester %d", result.Requester.PersonID)
	}
	if len(result.Steps) != len(Pipeline(DefaultThreshold)) {
		t.Fatalf("expected a report per step, got %d", len(result.Steps))
	}

	if _, err := engine.FindMatches(ctx, 2); !errors.Is(err, ErrNoEmbedding) {
		t.Fatalf("expected ErrNoEmbedding, got %v", err)
	}
	if _, err := engine.FindMatches(ctx, 42); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}

func TestFindMatchesEmptyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	if err := st.Put(ctx, person(1, 1, 0)); err != nil {
		t.Fatalf("put: %v", err)
	}

	result, err := New(st).FindMatches(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(result.Matches))
	}
}
