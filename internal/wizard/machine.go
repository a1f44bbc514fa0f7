package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/ai"
	"github.com/spigell/peermatch/internal/logger"
	"github.com/spigell/peermatch/internal/metrics"
	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/store"
	"github.com/spigell/peermatch/internal/utils"
)

const DefaultCommitTimeout = 20 * time.Second

// StartOptions select how a session begins.
type StartOptions struct {
	Intent      Intent
	Field       Field
	DisplayName string
}

// Step is the outcome of one event. While the session is open State is the
// state awaiting input; after a commit State is Idle and Profile is set.
type Step struct {
	State     State
	Session   Session
	Committed bool
	Profile   *profile.Profile
	// EmbeddingErr is set when the profile was saved without a vector.
	EmbeddingErr error
}

// Machine owns every wizard session. Events for one person are serialized.
type Machine struct {
	store         store.Store
	embedder      ai.Embedder
	commitTimeout time.Duration
	logger        *zap.Logger
	metrics       *metrics.Recorder
	now           func() time.Time

	mu         sync.Mutex
	sessions   map[int64]*Session
	committing map[int64]bool
	locks      *keyedMutex
}

type Option func(*Machine)

func WithCommitTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.commitTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.logger = logger.WithFields(l) }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Machine) { m.metrics = r }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(st store.Store, embedder ai.Embedder, opts ...Option) *Machine {
	m := &Machine{
		store:         st,
		embedder:      embedder,
		commitTimeout: DefaultCommitTimeout,
		logger:        zap.NewNop(),
		now:           time.Now,
		sessions:      make(map[int64]*Session),
		committing:    make(map[int64]bool),
		locks:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for the person, replacing any open one.
func (m *Machine) Start(ctx context.Context, personID int64, opts StartOptions) (*Step, error) {
	unlock := m.locks.Lock(personID)
	defer unlock()

	if m.isCommitting(personID) {
		return nil, ErrCommitInProgress
	}

	existing, err := m.store.Get(ctx, personID)
	if errors.Is(err, store.ErrNotFound) {
		existing = nil
	} else if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	sess := &Session{
		ID:          uuid.NewString(),
		PersonID:    personID,
		State:       AwaitingAffiliation,
		Mode:        ModeFull,
		DisplayName: strings.TrimSpace(opts.DisplayName),
		StartedAt:   m.now(),
		Collected:   profile.Fields{Skills: []string{}, Interests: []string{}},
	}

	switch opts.Intent {
	case IntentCreate:
		if existing != nil {
			return nil, ErrAlreadyExists
		}
	case IntentRestart:
	case IntentEdit:
		if existing == nil {
			return nil, store.ErrNotFound
		}
		if _, ok := fieldStates[opts.Field]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, opts.Field)
		}
		sess.Mode = ModeSingle
		sess.Field = opts.Field
		sess.State = opts.Field.State()
		sess.Collected = existing.Fields.Clone()
	default:
		return nil, fmt.Errorf("unknown intent %d", opts.Intent)
	}

	if existing != nil {
		sess.Language = existing.Language
		if sess.DisplayName == "" {
			sess.DisplayName = existing.DisplayName
		}
	} else {
		lang, err := m.store.GetLanguage(ctx, personID)
		if err != nil {
			return nil, fmt.Errorf("get language: %w", err)
		}
		sess.Language = lang
	}
	sess.Language = profile.NormalizeLanguage(sess.Language)

	m.mu.Lock()
	m.sessions[personID] = sess
	m.mu.Unlock()

	m.logger.Info("wizard started",
		append(logger.PersonFields(personID, sess.ID),
			zap.Stringer("mode", sess.Mode),
			zap.Stringer("state", sess.State),
		)...,
	)

	return &Step{State: sess.State, Session: sess.snapshot()}, nil
}

// Submit applies a free text answer to the current state.
func (m *Machine) Submit(ctx context.Context, personID int64, text string) (*Step, error) {
	return m.advance(ctx, personID, func(s *Session) error {
		return s.apply(text)
	})
}

// ChooseStage applies a stage code chosen from the fixed enumeration. Unknown
// codes resolve to the "other" label.
func (m *Machine) ChooseStage(ctx context.Context, personID int64, code string) (*Step, error) {
	return m.advance(ctx, personID, func(s *Session) error {
		if s.State != AwaitingStage {
			return &ValidationError{State: s.State, Reason: "stage choice not expected"}
		}
		label, _ := profile.StageLabel(code, s.Language)
		return s.apply(label)
	})
}

// Cancel drops the person's session without persisting anything.
func (m *Machine) Cancel(personID int64) bool {
	unlock := m.locks.Lock(personID)
	defer unlock()

	m.mu.Lock()
	sess, ok := m.sessions[personID]
	delete(m.sessions, personID)
	m.mu.Unlock()

	if ok {
		m.logger.Info("wizard cancelled", logger.PersonFields(personID, sess.ID)...)
	}
	return ok
}

// Active returns a snapshot of the person's session.
func (m *Machine) Active(personID int64) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[personID]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

func (m *Machine) isCommitting(personID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committing[personID]
}

func (m *Machine) advance(ctx context.Context, personID int64, input func(*Session) error) (*Step, error) {
	unlock := m.locks.Lock(personID)

	m.mu.Lock()
	if m.committing[personID] {
		m.mu.Unlock()
		unlock()
		return nil, ErrCommitInProgress
	}
	sess, ok := m.sessions[personID]
	m.mu.Unlock()
	if !ok {
		unlock()
		return nil, ErrNoSession
	}

	if err := input(sess); err != nil {
		unlock()
		return nil, err
	}

	if !sess.done() {
		sess.State = sess.State.next()
		step := &Step{State: sess.State, Session: sess.snapshot()}
		unlock()
		return step, nil
	}

	// Detach the session so the embedding call runs without the person lock.
	m.mu.Lock()
	delete(m.sessions, personID)
	m.committing[personID] = true
	m.mu.Unlock()
	unlock()

	return m.commit(ctx, sess)
}

func (m *Machine) commit(ctx context.Context, sess *Session) (*Step, error) {
	log := logger.WithFields(m.logger, logger.PersonFields(sess.PersonID, sess.ID)...)
	text := profile.EmbeddingText(sess.Collected)

	vector, embedErr := m.embed(ctx, text)
	if embedErr != nil {
		log.Warn("saving profile without embedding",
			zap.String("text", utils.TruncateForLog(text, 80)),
			zap.Error(embedErr),
		)
		m.metrics.EmbeddingFailure(m.embedderName())
	}

	unlock := m.locks.Lock(sess.PersonID)
	defer unlock()
	defer func() {
		m.mu.Lock()
		delete(m.committing, sess.PersonID)
		m.mu.Unlock()
	}()

	p := &profile.Profile{
		PersonID:    sess.PersonID,
		DisplayName: sess.DisplayName,
		Fields:      sess.Collected.Clone(),
		Embedding:   vector,
		Language:    sess.Language,
	}

	existing, err := m.store.Get(ctx, sess.PersonID)
	switch {
	case err == nil:
		p.IsBlocked = existing.IsBlocked
		p.Language = existing.Language
		if p.DisplayName == "" {
			p.DisplayName = existing.DisplayName
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		m.restore(sess)
		m.metrics.WizardCommit(sess.Mode.String(), "store_error")
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if err := m.store.Put(ctx, p); err != nil {
		m.restore(sess)
		m.metrics.WizardCommit(sess.Mode.String(), "store_error")
		return nil, fmt.Errorf("save profile: %w", err)
	}

	result := "ok"
	if embedErr != nil {
		result = "no_embedding"
	}
	m.metrics.WizardCommit(sess.Mode.String(), result)
	log.Info("profile saved",
		zap.Stringer("mode", sess.Mode),
		zap.Bool("has_embedding", p.HasEmbedding()),
	)

	final := sess.snapshot()
	final.State = Idle
	return &Step{
		State:        Idle,
		Session:      final,
		Committed:    true,
		Profile:      p.Clone(),
		EmbeddingErr: embedErr,
	}, nil
}

// embed bounds the provider call by the commit timeout. Every failure,
// including a timeout, wraps ai.ErrProviderUnavailable.
func (m *Machine) embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("%w: no provider configured", ai.ErrProviderUnavailable)
	}

	embedCtx, cancel := context.WithTimeout(ctx, m.commitTimeout)
	defer cancel()

	type result struct {
		vector []float32
		err    error
	}
	done := make(chan result, 1)
	go func() {
		v, err := m.embedder.Embed(embedCtx, text)
		done <- result{vector: v, err: err}
	}()

	select {
	case <-embedCtx.Done():
		return nil, fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, embedCtx.Err())
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, ai.ErrProviderUnavailable) {
				return nil, res.err
			}
			return nil, fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, res.err)
		}
		if len(res.vector) == 0 {
			return nil, fmt.Errorf("%w: empty vector", ai.ErrProviderUnavailable)
		}
		return res.vector, nil
	}
}

// restore puts a session back after a failed store write so that the last
// answer can be resubmitted.
func (m *Machine) restore(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.PersonID]; !ok {
		m.sessions[sess.PersonID] = sess
	}
}

func (m *Machine) embedderName() string {
	if m.embedder == nil {
		return "none"
	}
	return m.embedder.Name()
}
