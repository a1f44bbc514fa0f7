package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/logger"
	"github.com/spigell/peermatch/internal/metrics"
	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/store"
)

// DefaultThreshold is the exclusive lower bound on a match score.
const DefaultThreshold = 0.1

var (
	// ErrNoProfile means the requester has no stored profile.
	ErrNoProfile = errors.New("requester has no profile")
	// ErrNoEmbedding means the requester's profile was saved without a vector.
	ErrNoEmbedding = errors.New("requester profile has no embedding")
)

// Result is the ranked outcome of FindMatches. An empty Matches slice means
// nobody passed the pipeline.
type Result struct {
	Requester *profile.Profile
	Matches   []Candidate
	Steps     []StepReport
}

type Engine struct {
	store     store.Store
	threshold float64
	limit     int
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

type Option func(*Engine)

func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithLimit truncates results after sorting; 0 keeps everything.
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.limit = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger.WithFields(l) }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindMatches ranks every other non-blocked profile against the requester.
func (e *Engine) FindMatches(ctx context.Context, requesterID int64) (*Result, error) {
	log := logger.WithFields(e.logger, logger.PersonFields(requesterID, "")...)

	requester, err := e.store.Get(ctx, requesterID)
	if errors.Is(err, store.ErrNotFound) {
		e.metrics.MatchRequest("no_profile", -1)
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("get requester profile: %w", err)
	}
	if !requester.HasEmbedding() {
		e.metrics.MatchRequest("no_embedding", -1)
		return nil, ErrNoEmbedding
	}

	others, err := e.store.ListExcept(ctx, requesterID, true)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	matches, steps := e.rank(requester, others)
	for _, s := range steps {
		log.Debug("filter step",
			zap.String("name", s.Name),
			zap.Int("initial", s.Initial),
			zap.Int("dropped", s.Dropped),
			zap.Int("left", s.Left),
		)
	}
	log.Info("matches ranked", zap.Int("candidates", len(others)), zap.Int("matches", len(matches)))

	outcome := "ok"
	if len(matches) == 0 {
		outcome = "empty"
	}
	e.metrics.MatchRequest(outcome, len(matches))

	return &Result{Requester: requester, Matches: matches, Steps: steps}, nil
}

// Rank runs the pipeline over candidates without touching the store.
func (e *Engine) Rank(requester *profile.Profile, candidates []*profile.Profile) []Candidate {
	matches, _ := e.rank(requester, candidates)
	return matches
}

func (e *Engine) rank(requester *profile.Profile, candidates []*profile.Profile) ([]Candidate, []StepReport) {
	list := make([]Candidate, 0, len(candidates))
	for _, p := range candidates {
		if p == nil {
			continue
		}
		list = append(list, Candidate{Profile: p})
	}

	pipeline := Pipeline(e.threshold)
	reports := make([]StepReport, 0, len(pipeline))
	for _, f := range pipeline {
		initial := len(list)
		list = f.Apply(requester, list)
		reports = append(reports, StepReport{
			Name: f.Name(),
			Step: Step{Initial: initial, Dropped: initial - len(list), Left: len(list)},
		})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })

	if e.limit > 0 && len(list) > e.limit {
		list = list[:e.limit]
	}

	for i := range list {
		list[i].Reason = Reason(requester, list[i].Profile)
	}

	return list, reports
}
