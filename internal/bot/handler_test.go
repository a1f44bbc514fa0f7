package bot

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spigell/peermatch/internal/ai/local"
	"github.com/spigell/peermatch/internal/matching"
	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/ratelimit"
	"github.com/spigell/peermatch/internal/store"
	"github.com/spigell/peermatch/internal/store/memory"
	"github.com/spigell/peermatch/internal/wizard"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type testBot struct {
	handler  *Handler
	store    *memory.Store
	ledger   *memory.Store
	limiter  *ratelimit.Limiter
	clock    *fakeClock
	embedder *local.Embedder
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	st := memory.NewStore()
	ledger := memory.NewStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	embedder := local.NewEmbedder(0)

	limiter := ratelimit.New(ledger, nil, ratelimit.WithClock(clock.Now))
	h := NewHandler(st, wizard.New(st, embedder), matching.New(st), limiter)
	return &testBot{handler: h, store: st, ledger: ledger, limiter: limiter, clock: clock, embedder: embedder}
}

func (b *testBot) send(t *testing.T, ev Event) []Message {
	t.Helper()
	msgs, err := b.handler.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle %+v: %v", ev, err)
	}
	if len(msgs) == 0 {
		t.Fatalf("handle %+v: no messages", ev)
	}
	return msgs
}

func (b *testBot) seed(t *testing.T, id int64, username string, f profile.Fields) {
	t.Helper()
	vec, err := b.embedder.Embed(context.Background(), profile.EmbeddingText(f))
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	p := &profile.Profile{PersonID: id, DisplayName: username, Fields: f, Embedding: vec, Language: "en"}
	if err := b.store.Put(context.Background(), p); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func hasToken(m Message, token string) bool {
	for _, tok := range m.Tokens() {
		if tok == token {
			return true
		}
	}
	return false
}

func TestWizardThroughEvents(t *testing.T) {
	b := newTestBot(t)

	msgs := b.send(t, ParseInput(1, "alice", "/profile"))
	if msgs[0].Text != tr("en", "ask_university") || !hasToken(msgs[0], tokenCancelWizard) {
		t.Fatalf("unexpected first prompt: %+v", msgs[0])
	}

	msgs = b.send(t, ParseInput(1, "alice", "MSU"))
	if msgs[0].Text != tr("en", "ask_year", "MSU") || !hasToken(msgs[0], "year_2") {
		t.Fatalf("unexpected stage prompt: %+v", msgs[0])
	}

	msgs = b.send(t, ButtonPress(1, "alice", "year_2"))
	if msgs[0].Text != tr("en", "ask_skills", "2nd Year") {
		t.Fatalf("unexpected skills prompt: %q", msgs[0].Text)
	}

	b.send(t, ParseInput(1, "alice", "Go, SQL"))
	b.send(t, ParseInput(1, "alice", "AI"))
	msgs = b.send(t, ParseInput(1, "alice", "Build things"))
	if msgs[0].Text != tr("en", "profile_updated") || !hasToken(msgs[0], tokenStartMatching) {
		t.Fatalf("unexpected commit reply: %+v", msgs[0])
	}

	p, err := b.store.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Handle() != "@alice" || !p.HasEmbedding() || !reflect.DeepEqual(p.Skills, []string{"Go", "SQL"}) {
		t.Fatalf("unexpected stored profile: %+v", p)
	}

	msgs = b.send(t, ParseInput(1, "alice", "/profile"))
	if msgs[0].Text != tr("en", "profile_exists") {
		t.Fatalf("expected profile_exists, got %q", msgs[0].Text)
	}
}

func TestInvalidInputRepromptsSameQuestion(t *testing.T) {
	b := newTestBot(t)
	b.send(t, ParseInput(1, "alice", "/profile"))

	msgs := b.send(t, TextReply(1, "alice", "   "))
	if len(msgs) != 2 {
		t.Fatalf("expected error and re-prompt, got %+v", msgs)
	}
	if msgs[0].Text != tr("en", "invalid_input") || msgs[1].Text != tr("en", "ask_university") {
		t.Fatalf("unexpected replies: %+v", msgs)
	}
}

func TestTextWithoutSession(t *testing.T) {
	b := newTestBot(t)
	msgs := b.send(t, TextReply(1, "alice", "hello"))
	if msgs[0].Text != tr("en", "use_menu") {
		t.Fatalf("expected use_menu, got %q", msgs[0].Text)
	}
}

func TestCancelCommand(t *testing.T) {
	b := newTestBot(t)

	msgs := b.send(t, ParseInput(1, "alice", "/cancel"))
	if msgs[0].Text != tr("en", "nothing_to_cancel") {
		t.Fatalf("expected nothing_to_cancel, got %q", msgs[0].Text)
	}

	b.send(t, ParseInput(1, "alice", "/profile"))
	b.send(t, ParseInput(1, "alice", "MSU"))
	msgs = b.send(t, ButtonPress(1, "alice", tokenCancelWizard))
	if msgs[0].Text != tr("en", "wizard_cancelled") {
		t.Fatalf("expected wizard_cancelled, got %q", msgs[0].Text)
	}
	if _, err := b.store.Get(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestLanguageSwitch(t *testing.T) {
	b := newTestBot(t)

	msgs := b.send(t, ParseInput(1, "ivan", "/start"))
	if !hasToken(msgs[0], "lang_ru") || !hasToken(msgs[0], "lang_en") {
		t.Fatalf("expected language picker, got %+v", msgs[0])
	}

	msgs = b.send(t, ButtonPress(1, "ivan", "lang_ru"))
	if msgs[0].Notice != tr("ru", "lang_changed") || !hasToken(msgs[0], tokenStartWizard) {
		t.Fatalf("unexpected language reply: %+v", msgs[0])
	}

	msgs = b.send(t, ParseInput(1, "ivan", "/rules"))
	if msgs[0].Text != tr("ru", "rules_text") {
		t.Fatalf("expected russian rules, got %q", msgs[0].Text)
	}
}

func TestEditButtons(t *testing.T) {
	b := newTestBot(t)

	msgs := b.send(t, ButtonPress(1, "alice", "edit_skills"))
	if msgs[0].Text != tr("en", "no_profile") {
		t.Fatalf("expected no_profile, got %q", msgs[0].Text)
	}

	b.seed(t, 1, "alice", profile.Fields{Affiliation: "MSU", Stage: "PhD", Skills: []string{"Go"}, Interests: []string{}, Goals: "g"})

	msgs = b.send(t, ParseInput(1, "alice", "/edit"))
	if !hasToken(msgs[0], "edit_affiliation") || !hasToken(msgs[0], tokenConfirmDelete) {
		t.Fatalf("unexpected edit menu: %+v", msgs[0])
	}

	tests := []struct {
		token string
		want  string
	}{
		{token: "edit_university", want: tr("en", "enter_uni")},
		{token: "edit_year", want: tr("en", "enter_year")},
		{token: "edit_interests", want: tr("en", "enter_interests")},
	}
	for _, tt := range tests {
		msgs = b.send(t, ButtonPress(1, "alice", tt.token))
		if msgs[0].Text != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.token, tt.want, msgs[0].Text)
		}
	}

	msgs = b.send(t, ButtonPress(1, "alice", "edit_nickname"))
	if msgs[0].Notice != tr("en", "unknown_action") {
		t.Fatalf("expected unknown_action, got %+v", msgs[0])
	}

	// the last opened single field edit is still active
	msgs = b.send(t, TextReply(1, "alice", "Chess, Math"))
	if msgs[0].Text != tr("en", "profile_updated") {
		t.Fatalf("expected profile_updated, got %q", msgs[0].Text)
	}
	p, _ := b.store.Get(context.Background(), 1)
	if !reflect.DeepEqual(p.Interests, []string{"Chess", "Math"}) || p.Stage != "PhD" {
		t.Fatalf("unexpected profile after edit: %+v", p.Fields)
	}
}

func TestMatchesAreRateLimited(t *testing.T) {
	b := newTestBot(t)
	b.seed(t, 1, "alice", profile.Fields{Affiliation: "MSU", Stage: "PhD", Skills: []string{"Go", "SQL"}, Interests: []string{"AI"}, Goals: "build startups"})
	b.seed(t, 2, "bob", profile.Fields{Affiliation: "MSU", Stage: "PhD", Skills: []string{"Go", "Python"}, Interests: []string{"AI"}, Goals: "build startups"})

	msgs := b.send(t, ButtonPress(1, "alice", tokenStartMatching))
	if len(msgs) != 2 {
		t.Fatalf("expected header and one match, got %+v", msgs)
	}
	if msgs[0].Text != tr("en", "matches_found", 1) {
		t.Fatalf("unexpected header: %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[1].Text, "@bob") || !strings.Contains(msgs[1].Text, "You are both from MSU") {
		t.Fatalf("unexpected match card: %q", msgs[1].Text)
	}
	if got := msgs[1].Tokens(); !reflect.DeepEqual(got, []string{"report_2"}) {
		t.Fatalf("unexpected match buttons: %v", got)
	}

	msgs = b.send(t, ParseInput(1, "alice", "/matches"))
	if msgs[0].Text != tr("en", "rate_limited", 60, 0) {
		t.Fatalf("expected rate limit, got %q", msgs[0].Text)
	}

	b.clock.now = b.clock.now.Add(DefaultMatchCooldown)
	msgs = b.send(t, ParseInput(1, "alice", "/matches"))
	if msgs[0].Text != tr("en", "matches_found", 1) {
		t.Fatalf("expected matches after cooldown, got %q", msgs[0].Text)
	}
}

func TestFailedSearchDoesNotConsumeCooldown(t *testing.T) {
	b := newTestBot(t)

	msgs := b.send(t, ParseInput(1, "alice", "/matches"))
	if msgs[0].Text != tr("en", "no_profile") {
		t.Fatalf("expected no_profile, got %q", msgs[0].Text)
	}
	decision, err := b.limiter.Check(context.Background(), 1, ratelimit.ActionMatches, DefaultMatchCooldown)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected search to remain allowed, got %+v, %v", decision, err)
	}

	if err := b.store.Put(context.Background(), &profile.Profile{PersonID: 1, Fields: profile.Fields{Affiliation: "MSU"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	msgs = b.send(t, ParseInput(1, "alice", "/matches"))
	if msgs[0].Text != tr("en", "no_embedding") {
		t.Fatalf("expected no_embedding, got %q", msgs[0].Text)
	}

	b.seed(t, 1, "alice", profile.Fields{Affiliation: "MSU", Skills: []string{"Go"}})
	msgs = b.send(t, ParseInput(1, "alice", "/matches"))
	if msgs[0].Text != tr("en", "no_matches") {
		t.Fatalf("expected no_matches, got %q", msgs[0].Text)
	}
}

func TestReportBlocksTarget(t *testing.T) {
	b := newTestBot(t)
	b.seed(t, 1, "alice", profile.Fields{Affiliation: "MSU"})
	b.seed(t, 2, "bob", profile.Fields{Affiliation: "MSU"})

	tests := []struct {
		token string
		want  string
	}{
		{token: "report_1", want: tr("en", "report_self")},
		{token: "report_99", want: tr("en", "user_not_found")},
		{token: "report_bob", want: tr("en", "unknown_action")},
		{token: "report_2", want: tr("en", "user_reported")},
	}
	for _, tt := range tests {
		msgs := b.send(t, ButtonPress(1, "alice", tt.token))
		if msgs[0].Notice != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.token, tt.want, msgs[0].Notice)
		}
	}

	p, err := b.store.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.IsBlocked {
		t.Fatalf("expected reported profile to be blocked")
	}
}

func TestDeleteFlow(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	b.seed(t, 1, "alice", profile.Fields{Affiliation: "MSU"})
	if err := b.limiter.Record(ctx, 1, ratelimit.ActionMatches); err != nil {
		t.Fatalf("record: %v", err)
	}

	msgs := b.send(t, ButtonPress(1, "alice", tokenConfirmDelete))
	if got := msgs[0].Tokens(); !reflect.DeepEqual(got, []string{tokenActualDelete, tokenOpenEditMenu}) {
		t.Fatalf("unexpected confirmation buttons: %v", got)
	}

	msgs = b.send(t, ButtonPress(1, "alice", tokenActualDelete))
	if msgs[0].Text != tr("en", "profile_deleted") {
		t.Fatalf("expected profile_deleted, got %q", msgs[0].Text)
	}

	if _, err := b.store.Get(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected profile to be gone, got %v", err)
	}
	if _, ok, _ := b.ledger.LastUsed(ctx, 1, ratelimit.ActionMatches); ok {
		t.Fatalf("expected ledger rows to be forgotten")
	}

	msgs = b.send(t, ParseInput(1, "alice", "/myprofile"))
	if msgs[0].Text != tr("en", "no_profile") {
		t.Fatalf("expected no_profile, got %q", msgs[0].Text)
	}
}

func TestStatsAndProfileView(t *testing.T) {
	b := newTestBot(t)
	b.seed(t, 1, "alice", profile.Fields{Affiliation: "MSU", Stage: "PhD", Skills: []string{"Go", "SQL"}, Goals: "g"})
	b.seed(t, 2, "bob", profile.Fields{Affiliation: "HSE", Skills: []string{"Go"}})

	msgs := b.send(t, ParseInput(1, "alice", "/stats"))
	if msgs[0].Text != tr("en", "stats_text", 2, "Go") {
		t.Fatalf("unexpected stats: %q", msgs[0].Text)
	}

	msgs = b.send(t, ParseInput(1, "alice", "/myprofile"))
	if !strings.Contains(msgs[0].Text, "Go, SQL") || !strings.Contains(msgs[0].Text, "PhD") {
		t.Fatalf("unexpected profile view: %q", msgs[0].Text)
	}
	if got := msgs[0].Tokens(); !reflect.DeepEqual(got, []string{tokenOpenEditMenu, tokenStartMatching}) {
		t.Fatalf("unexpected profile buttons: %v", got)
	}
}

func TestTranslationFallback(t *testing.T) {
	if got := tr("de", "done"); got != "Done" {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if got := tr("ru", "missing_key"); got != "missing_key" {
		t.Fatalf("expected key fallback, got %q", got)
	}
	for key := range catalog["en"] {
		if _, ok := catalog["ru"][key]; !ok {
			t.Errorf("russian catalog misses %q", key)
		}
	}
}
