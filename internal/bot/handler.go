package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/logger"
	"github.com/spigell/peermatch/internal/matching"
	"github.com/spigell/peermatch/internal/metrics"
	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/ratelimit"
	"github.com/spigell/peermatch/internal/store"
	"github.com/spigell/peermatch/internal/wizard"
)

// DefaultMatchCooldown is the minimum time between two match searches.
const DefaultMatchCooldown = time.Hour

const (
	tokenLangPrefix   = "lang_"
	tokenEditPrefix   = "edit_"
	tokenYearPrefix   = "year_"
	tokenReportPrefix = "report_"

	tokenStartWizard   = "start_wizard"
	tokenStartMatching = "start_matching"
	tokenViewRules     = "view_rules"
	tokenHelp          = "help"
	tokenOpenEditMenu  = "open_edit_menu"
	tokenEditAll       = "edit_all"
	tokenCancelWizard  = "cancel_wizard"
	tokenFinishEdit    = "finish_edit"
	tokenConfirmDelete = "confirm_delete"
	tokenActualDelete  = "actual_delete"
)

// legacy edit tokens used by older keyboards
var fieldAliases = map[string]wizard.Field{
	"university": wizard.FieldAffiliation,
	"year":       wizard.FieldStage,
}

// Handler turns chat events into outbound messages. Recoverable conditions
// become user-facing messages; only store failures are returned as errors.
type Handler struct {
	store    store.Store
	wizard   *wizard.Machine
	engine   *matching.Engine
	limiter  *ratelimit.Limiter
	cooldown time.Duration
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

type Option func(*Handler)

func WithMatchCooldown(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.cooldown = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger.WithFields(l) }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(st store.Store, wz *wizard.Machine, engine *matching.Engine, limiter *ratelimit.Limiter, opts ...Option) *Handler {
	h := &Handler{
		store:    st,
		wizard:   wz,
		engine:   engine,
		limiter:  limiter,
		cooldown: DefaultMatchCooldown,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Handle(ctx context.Context, ev Event) ([]Message, error) {
	lang, err := h.store.GetLanguage(ctx, ev.PersonID)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}

	switch ev.Kind {
	case KindCommand:
		h.logger.Debug("command", append(logger.PersonFields(ev.PersonID, ""), zap.String("name", ev.Name))...)
		return h.command(ctx, ev, lang)
	case KindText:
		return h.text(ctx, ev, lang)
	case KindButton:
		h.logger.Debug("button", append(logger.PersonFields(ev.PersonID, ""), zap.String("token", ev.Token))...)
		return h.button(ctx, ev, lang)
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func (h *Handler) command(ctx context.Context, ev Event, lang string) ([]Message, error) {
	switch ev.Name {
	case "start":
		h.wizard.Cancel(ev.PersonID)
		return one(languagePicker()), nil
	case "language":
		return one(languagePicker()), nil
	case "help":
		return one(Message{Text: tr(lang, "welcome") + "\n\n" + tr(lang, "help_text")}), nil
	case "rules":
		return one(Message{Text: tr(lang, "rules_text")}), nil
	case "profile":
		return h.startWizard(ctx, ev, lang, wizard.StartOptions{Intent: wizard.IntentCreate})
	case "myprofile":
		return h.myProfile(ctx, ev.PersonID, lang)
	case "edit":
		return h.editMenu(ctx, ev.PersonID, lang)
	case "matches":
		return h.matches(ctx, ev.PersonID, lang)
	case "stats":
		return h.stats(ctx, lang)
	case "report":
		return one(Message{Text: tr(lang, "report_hint")}), nil
	case "cancel":
		return h.cancel(ev.PersonID, lang, "")
	default:
		return one(Message{Text: tr(lang, "use_menu")}), nil
	}
}

func (h *Handler) text(ctx context.Context, ev Event, lang string) ([]Message, error) {
	if _, ok := h.wizard.Active(ev.PersonID); !ok {
		return one(Message{Text: tr(lang, "use_menu")}), nil
	}
	step, err := h.wizard.Submit(ctx, ev.PersonID, ev.Text)
	return h.wizardReply(ev.PersonID, lang, step, err)
}

func (h *Handler) button(ctx context.Context, ev Event, lang string) ([]Message, error) {
	token := ev.Token

	switch token {
	case tokenStartWizard:
		return h.startWizard(ctx, ev, lang, wizard.StartOptions{Intent: wizard.IntentCreate})
	case tokenStartMatching:
		return h.matches(ctx, ev.PersonID, lang)
	case tokenViewRules:
		return one(Message{Text: tr(lang, "rules_text")}), nil
	case tokenHelp:
		return one(Message{Text: tr(lang, "welcome") + "\n\n" + tr(lang, "help_text")}), nil
	case tokenOpenEditMenu:
		return h.editMenu(ctx, ev.PersonID, lang)
	case tokenEditAll:
		return h.startWizard(ctx, ev, lang, wizard.StartOptions{Intent: wizard.IntentRestart})
	case tokenCancelWizard:
		return h.cancel(ev.PersonID, lang, tr(lang, "wizard_cancelled"))
	case tokenFinishEdit:
		return one(Message{Text: tr(lang, "profile_updated"), Notice: tr(lang, "done")}), nil
	case tokenConfirmDelete:
		return one(Message{
			Text: tr(lang, "confirm_delete"),
			Buttons: [][]Button{
				{{Text: tr(lang, "yes_delete"), Token: tokenActualDelete}},
				{{Text: tr(lang, "no_keep"), Token: tokenOpenEditMenu}},
			},
		}), nil
	case tokenActualDelete:
		return h.deleteProfile(ctx, ev.PersonID, lang)
	}

	switch {
	case strings.HasPrefix(token, tokenLangPrefix):
		return h.setLanguage(ctx, ev.PersonID, strings.TrimPrefix(token, tokenLangPrefix))
	case strings.HasPrefix(token, tokenYearPrefix):
		step, err := h.wizard.ChooseStage(ctx, ev.PersonID, strings.TrimPrefix(token, tokenYearPrefix))
		return h.wizardReply(ev.PersonID, lang, step, err)
	case strings.HasPrefix(token, tokenEditPrefix):
		raw := strings.TrimPrefix(token, tokenEditPrefix)
		field, ok := fieldAliases[raw]
		if !ok {
			var err error
			if field, err = wizard.ParseField(raw); err != nil {
				return one(Message{Notice: tr(lang, "unknown_action")}), nil
			}
		}
		return h.startWizard(ctx, ev, lang, wizard.StartOptions{Intent: wizard.IntentEdit, Field: field})
	case strings.HasPrefix(token, tokenReportPrefix):
		return h.report(ctx, ev.PersonID, lang, strings.TrimPrefix(token, tokenReportPrefix))
	}

	return one(Message{Notice: tr(lang, "unknown_action")}), nil
}

func (h *Handler) setLanguage(ctx context.Context, personID int64, code string) ([]Message, error) {
	lang := profile.NormalizeLanguage(code)
	if err := h.store.SetLanguage(ctx, personID, lang); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	return one(Message{
		Text:    tr(lang, "welcome"),
		Buttons: homeKeyboard(lang),
		Notice:  tr(lang, "lang_changed"),
	}), nil
}

func (h *Handler) startWizard(ctx context.Context, ev Event, lang string, opts wizard.StartOptions) ([]Message, error) {
	opts.DisplayName = ev.Username
	step, err := h.wizard.Start(ctx, ev.PersonID, opts)
	switch {
	case errors.Is(err, wizard.ErrAlreadyExists):
		return one(Message{Text: tr(lang, "profile_exists")}), nil
	case errors.Is(err, store.ErrNotFound):
		return one(Message{Text: tr(lang, "no_profile")}), nil
	}
	return h.wizardReply(ev.PersonID, lang, step, err)
}

// wizardReply renders the outcome of a wizard operation.
func (h *Handler) wizardReply(personID int64, lang string, step *wizard.Step, err error) ([]Message, error) {
	var verr *wizard.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		msgs := []Message{{Text: tr(lang, "invalid_input")}}
		if sess, ok := h.wizard.Active(personID); ok {
			msgs = append(msgs, prompt(sess))
		}
		return msgs, nil
	case errors.Is(err, wizard.ErrNoSession):
		return one(Message{Text: tr(lang, "no_session")}), nil
	case errors.Is(err, wizard.ErrCommitInProgress):
		return one(Message{Text: tr(lang, "commit_busy")}), nil
	case errors.Is(err, wizard.ErrUnknownField):
		return one(Message{Notice: tr(lang, "unknown_action")}), nil
	default:
		return nil, err
	}

	if !step.Committed {
		return one(prompt(step.Session)), nil
	}

	lang = step.Profile.Language
	key := "profile_updated"
	if step.EmbeddingErr != nil {
		key = "profile_saved_no_embedding"
	}
	return one(Message{
		Text:    tr(lang, key),
		Buttons: [][]Button{{{Text: tr(lang, "find_matches"), Token: tokenStartMatching}}},
	}), nil
}

func (h *Handler) cancel(personID int64, lang, notice string) ([]Message, error) {
	if !h.wizard.Cancel(personID) {
		return one(Message{Text: tr(lang, "nothing_to_cancel"), Notice: notice}), nil
	}
	return one(Message{Text: tr(lang, "wizard_cancelled"), Notice: notice}), nil
}

func (h *Handler) myProfile(ctx context.Context, personID int64, lang string) ([]Message, error) {
	p, err := h.store.Get(ctx, personID)
	if errors.Is(err, store.ErrNotFound) {
		return one(Message{Text: tr(lang, "no_profile")}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return one(Message{
		Text: formatProfile(p, lang),
		Buttons: [][]Button{
			{{Text: tr(lang, "edit_profile"), Token: tokenOpenEditMenu}},
			{{Text: tr(lang, "find_matches"), Token: tokenStartMatching}},
		},
	}), nil
}

func (h *Handler) editMenu(ctx context.Context, personID int64, lang string) ([]Message, error) {
	if _, err := h.store.Get(ctx, personID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return one(Message{Text: tr(lang, "no_profile")}), nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return one(Message{Text: tr(lang, "edit_menu_title"), Buttons: editKeyboard(lang)}), nil
}

func (h *Handler) deleteProfile(ctx context.Context, personID int64, lang string) ([]Message, error) {
	h.wizard.Cancel(personID)
	if err := h.store.Delete(ctx, personID); err != nil {
		return nil, fmt.Errorf("delete profile: %w", err)
	}
	// the ledger may live outside the profile store
	if err := h.limiter.Forget(ctx, personID); err != nil {
		return nil, fmt.Errorf("forget rate limits: %w", err)
	}
	h.logger.Info("profile deleted", logger.PersonFields(personID, "")...)
	return one(Message{Text: tr(lang, "profile_deleted"), Notice: tr(lang, "done")}), nil
}

func (h *Handler) report(ctx context.Context, reporterID int64, lang, raw string) ([]Message, error) {
	targetID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return one(Message{Notice: tr(lang, "unknown_action")}), nil
	}
	if targetID == reporterID {
		return one(Message{Notice: tr(lang, "report_self")}), nil
	}

	if err := h.store.Block(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return one(Message{Notice: tr(lang, "user_not_found")}), nil
		}
		return nil, fmt.Errorf("block profile: %w", err)
	}

	h.logger.Info("profile reported",
		zap.Int64("reporter_id", reporterID),
		zap.Int64("target_id", targetID),
	)
	return one(Message{Notice: tr(lang, "user_reported")}), nil
}

func (h *Handler) matches(ctx context.Context, personID int64, lang string) ([]Message, error) {
	decision, err := h.limiter.Check(ctx, personID, ratelimit.ActionMatches, h.cooldown)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		h.metrics.RateLimited(ratelimit.ActionMatches)
		secs := decision.RemainingSeconds()
		return one(Message{Text: tr(lang, "rate_limited", secs/60, secs%60)}), nil
	}

	result, err := h.engine.FindMatches(ctx, personID)
	switch {
	case errors.Is(err, matching.ErrNoProfile):
		return one(Message{Text: tr(lang, "no_profile")}), nil
	case errors.Is(err, matching.ErrNoEmbedding):
		return one(Message{Text: tr(lang, "no_embedding")}), nil
	case err != nil:
		return nil, err
	}

	if err := h.limiter.Record(ctx, personID, ratelimit.ActionMatches); err != nil {
		return nil, err
	}

	lang = result.Requester.Language
	if len(result.Matches) == 0 {
		return one(Message{Text: tr(lang, "no_matches")}), nil
	}

	msgs := make([]Message, 0, len(result.Matches)+1)
	msgs = append(msgs, Message{Text: tr(lang, "matches_found", len(result.Matches))})
	for i, m := range result.Matches {
		msgs = append(msgs, Message{
			Text: tr(lang, "match_item", i+1, m.Profile.Handle(), m.Score, m.Reason),
			Buttons: [][]Button{{{
				Text:  tr(lang, "report_user"),
				Token: tokenReportPrefix + strconv.FormatInt(m.Profile.PersonID, 10),
			}}},
		})
	}
	return msgs, nil
}

func (h *Handler) stats(ctx context.Context, lang string) ([]Message, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return one(Message{Text: tr(lang, "stats_text", stats.TotalUsers, stats.TopSkill)}), nil
}

func one(m Message) []Message {
	return []Message{m}
}
