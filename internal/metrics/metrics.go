package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "peermatch"

// Recorder exposes the Prometheus collectors of the bot. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	wizardCommits     *prometheus.CounterVec
	embeddingFailures *prometheus.CounterVec
	matchRequests     *prometheus.CounterVec
	matchCandidates   prometheus.Histogram
	rateLimited       *prometheus.CounterVec
	repairedProfiles  *prometheus.CounterVec
}

// New registers the collectors with reg. Collectors that are already
// registered (a second Recorder in the same process, tests) are reused.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Recorder{
		wizardCommits: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "commits_total",
			Help:      "Profile commits by mode and result.",
		}, []string{"mode", "result"})),
		embeddingFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "failures_total",
			Help:      "Embedding provider failures by provider.",
		}, []string{"provider"})),
		matchRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "requests_total",
			Help:      "Match requests by outcome.",
		}, []string{"outcome"})),
		matchCandidates: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "candidates_returned",
			Help:      "Number of matches returned per request.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		})),
		rateLimited: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "denied_total",
			Help:      "Actions refused by the rate limiter.",
		}, []string{"action"})),
		repairedProfiles: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "profiles_total",
			Help:      "Profiles processed by the embedding repair job by result.",
		}, []string{"result"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (r *Recorder) WizardCommit(mode, result string) {
	if r == nil {
		return
	}
	r.wizardCommits.WithLabelValues(mode, result).Inc()
}

func (r *Recorder) EmbeddingFailure(provider string) {
	if r == nil {
		return
	}
	r.embeddingFailures.WithLabelValues(provider).Inc()
}

// MatchRequest counts a match request. Candidates are observed only for
// requests that produced a result.
func (r *Recorder) MatchRequest(outcome string, candidates int) {
	if r == nil {
		return
	}
	r.matchRequests.WithLabelValues(outcome).Inc()
	if candidates >= 0 {
		r.matchCandidates.Observe(float64(candidates))
	}
}

func (r *Recorder) RateLimited(action string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(action).Inc()
}

func (r *Recorder) Repaired(result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.repairedProfiles.WithLabelValues(result).Add(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *zap.Logger) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
