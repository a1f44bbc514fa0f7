package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.WizardCommit("full", "ok")
	r.WizardCommit("full", "ok")
	r.WizardCommit("single", "no_embedding")
	r.MatchRequest("ok", 3)
	r.MatchRequest("no_profile", -1)
	r.RateLimited("matches")
	r.EmbeddingFailure("gemini")
	r.Repaired("repaired", 2)
	r.Repaired("skipped", 0)

	if got := testutil.ToFloat64(r.wizardCommits.WithLabelValues("full", "ok")); got != 2 {
		t.Fatalf("expected 2 full commits, got %f", got)
	}
	if got := testutil.ToFloat64(r.matchRequests.WithLabelValues("no_profile")); got != 1 {
		t.Fatalf("expected 1 no_profile request, got %f", got)
	}
	if got := testutil.CollectAndCount(r.matchCandidates); got != 1 {
		t.Fatalf("expected histogram to be collected once, got %d", got)
	}
	if got := testutil.ToFloat64(r.repairedProfiles.WithLabelValues("repaired")); got != 2 {
		t.Fatalf("expected 2 repaired profiles, got %f", got)
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	second := New(reg)

	first.RateLimited("matches")
	second.RateLimited("matches")

	if got := testutil.ToFloat64(first.rateLimited.WithLabelValues("matches")); got != 2 {
		t.Fatalf("expected shared counter to be 2, got %f", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.WizardCommit("full", "ok")
	r.EmbeddingFailure("local")
	r.MatchRequest("ok", 1)
	r.RateLimited("matches")
	r.Repaired("failed", 1)
}
