// Package session drives one extraction from pasted text to committed graph
// changes: input, requesting, review, committing, error and closed.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"linkboard/backend/internal/adapter"
	"linkboard/backend/internal/graph"
	"linkboard/backend/internal/merge"
	"linkboard/backend/internal/metrics"
	"linkboard/backend/internal/normalizer"
	"linkboard/backend/internal/prompt"
	"linkboard/backend/internal/sanitizer"
	"linkboard/backend/internal/state"
	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

// Inferer sends one prompt to the model and returns the raw response text
type Inferer interface {
	Infer(ctx context.Context, p prompt.Prompt, s adapter.Settings) (string, error)
}

// Options are the collaborators shared by every session
type Options struct {
	Inferer        Inferer
	Store          graph.Store
	Merger         *merge.Engine
	Vocabulary     prompt.Vocabulary
	MaxSourceChars int
	Metrics        *metrics.Metrics
}

// Session is one extraction. All methods are safe for concurrent use; the
// inference call runs in its own goroutine and is the only blocking step.
type Session struct {
	mu sync.Mutex

	id         string
	phase      state.Phase
	sourceText string
	settings   adapter.Settings
	nodes      []state.ProposedNode
	edges      []state.ProposedEdge
	existing   graph.LabelIndex
	lastError  error
	lastResult *merge.Result
	startedAt  time.Time

	// cancel aborts the in-flight request. generation is bumped whenever a
	// request is started or abandoned so a late result is recognised as stale.
	cancel     context.CancelFunc
	generation uint64

	opts       Options
	normalizer *normalizer.Normalizer
	logger     *zap.Logger
}

// New creates a session in the input phase
func New(opts Options, settings adapter.Settings) *Session {
	if opts.MaxSourceChars <= 0 {
		opts.MaxSourceChars = 50000
	}
	if opts.Vocabulary.NodeTypes == nil {
		opts.Vocabulary = prompt.DefaultVocabulary()
	}
	if opts.Merger == nil {
		opts.Merger = merge.NewEngine(opts.Metrics)
	}

	id := uuid.New().String()
	return &Session{
		id:         id,
		phase:      state.PhaseInput,
		settings:   settings,
		opts:       opts,
		normalizer: normalizer.New(normalizer.NewIDGenerator()),
		logger:     logger.Get().With(zap.String("session_id", id)),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Phase returns the current phase
func (s *Session) Phase() state.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the failure that put the session in the error phase, or the
// last commit failure while back in review
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// SetText replaces the source text. Only allowed while in input.
func (s *Session) SetText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != state.PhaseInput {
		return apperrors.NewInvalidTransition(string(s.phase), "edit text")
	}
	s.sourceText = text
	return nil
}

// SetSettings replaces the inference settings used by the next request
func (s *Session) SetSettings(settings adapter.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Start issues the inference request for the current text and returns
// immediately. The returned channel is closed once the request has settled,
// whatever the outcome.
//
// Blank text is rejected and leaves the session in input. Text longer than
// the character ceiling moves the session to error without any request.
func (s *Session) Start(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != state.PhaseInput {
		return nil, apperrors.NewInvalidTransition(string(s.phase), "start extraction")
	}
	if strings.TrimSpace(s.sourceText) == "" {
		return nil, apperrors.ErrEmptySourceText
	}
	if n := utf8.RuneCountInString(s.sourceText); n > s.opts.MaxSourceChars {
		err := apperrors.NewTextTooLarge(n, s.opts.MaxSourceChars)
		s.fail(err)
		s.opts.Metrics.RecordExtraction(metrics.OutcomeTooLarge)
		return nil, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.generation++
	s.lastError = nil
	s.startedAt = time.Now()
	s.setPhase(state.PhaseRequesting)

	done := make(chan struct{})
	go s.run(reqCtx, s.generation, s.sourceText, s.settings, done)
	return done, nil
}

// Run starts a request and waits for it to settle. It returns nil when the
// session reaches review, the failure when it reaches error, and an
// ErrCancelled when the request was cancelled.
func (s *Session) Run(ctx context.Context) error {
	done, err := s.Start(ctx)
	if err != nil {
		return err
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case state.PhaseReview:
		return nil
	case state.PhaseError:
		return s.lastError
	default:
		return apperrors.NewCancelled("extraction", context.Canceled)
	}
}

func (s *Session) run(ctx context.Context, generation uint64, text string, settings adapter.Settings, done chan<- struct{}) {
	defer close(done)

	s.logger.Info("Extraction request started",
		zap.String("model", settings.Model),
		zap.Int("text_chars", utf8.RuneCountInString(text)),
	)

	proposals, existing, err := s.extract(ctx, text, settings)

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.phase != state.PhaseRequesting {
		s.logger.Debug("Discarding stale extraction result")
		return
	}
	s.cancel()
	s.cancel = nil

	switch {
	case err == nil:
		s.nodes = proposals.Nodes
		s.edges = proposals.Edges
		s.existing = existing
		s.setPhase(state.PhaseReview)
		s.opts.Metrics.RecordExtraction(metrics.OutcomeSuccess)
		s.logger.Info("Extraction request finished",
			zap.Int("nodes", len(s.nodes)),
			zap.Int("edges", len(s.edges)),
			zap.Duration("elapsed", time.Since(s.startedAt)),
		)
	case apperrors.IsCancelled(err):
		s.generation++
		s.setPhase(state.PhaseInput)
		s.opts.Metrics.RecordExtraction(metrics.OutcomeCancelled)
		s.logger.Info("Extraction request cancelled")
	default:
		s.fail(err)
		if errors.Is(err, apperrors.ErrNoEntitiesFound) {
			s.opts.Metrics.RecordExtraction(metrics.OutcomeEmpty)
		} else {
			s.opts.Metrics.RecordExtraction(metrics.OutcomeFailed)
		}
		s.logger.Warn("Extraction request failed", zap.Error(err))
	}
}

// extract runs inference, sanitizing and normalizing without holding the lock
func (s *Session) extract(ctx context.Context, text string, settings adapter.Settings) (*state.Proposals, graph.LabelIndex, error) {
	started := time.Now()
	raw, err := s.opts.Inferer.Infer(ctx, prompt.BuildPrompt(text, s.opts.Vocabulary), settings)
	s.opts.Metrics.ObserveInference(time.Since(started))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) && !apperrors.IsCancelled(err) {
			err = apperrors.NewCancelled("inference", ctx.Err())
		}
		return nil, nil, err
	}

	candidate, stage := sanitizer.SanitizeWithStage(raw)
	s.opts.Metrics.RecordSanitizerStage(string(stage))
	s.logger.Debug("Response sanitized", zap.String("stage", string(stage)), zap.Int("response_chars", len(raw)))

	proposals, err := s.normalizer.Normalize(candidate)
	if err != nil {
		return nil, nil, err
	}
	if proposals.Empty() {
		return nil, nil, apperrors.ErrNoEntitiesFound
	}
	s.opts.Metrics.RecordProposals(len(proposals.Nodes), len(proposals.Edges))

	existing := graph.LabelIndex{}
	if s.opts.Store != nil {
		labels, err := s.opts.Store.ListNodeLabels(ctx)
		if err != nil {
			s.logger.Warn("Could not load board labels for duplicate markers", zap.Error(err))
		} else {
			existing = graph.NewLabelIndex(labels)
		}
	}

	return proposals, existing, nil
}

// Cancel aborts the in-flight request and returns the session to input with
// its text intact. It does nothing when no request is in flight.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != state.PhaseRequesting {
		return
	}
	s.cancel()
	s.cancel = nil
	s.generation++
	s.setPhase(state.PhaseInput)
	s.opts.Metrics.RecordExtraction(metrics.OutcomeCancelled)
	s.logger.Info("Extraction request cancelled")
}

// Retry leaves the error phase for input, keeping the text
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != state.PhaseError {
		return apperrors.NewInvalidTransition(string(s.phase), "retry")
	}
	s.lastError = nil
	s.nodes = nil
	s.edges = nil
	s.existing = nil
	s.setPhase(state.PhaseInput)
	return nil
}

// Close discards every piece of session state. Closed is terminal.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.sourceText = ""
	s.nodes = nil
	s.edges = nil
	s.existing = nil
	s.lastError = nil
	s.setPhase(state.PhaseClosed)
}

// Commit merges every accepted proposal into the board. On success the
// session closes; on failure it returns to review with the failure recorded
// so the operator can try again.
func (s *Session) Commit(ctx context.Context) (*merge.Result, error) {
	s.mu.Lock()
	if s.phase != state.PhaseReview {
		phase := s.phase
		s.mu.Unlock()
		return nil, apperrors.NewInvalidTransition(string(phase), "commit")
	}

	var nodes []state.ProposedNode
	for _, n := range s.nodes {
		if n.ReviewState == state.ReviewAccepted {
			nodes = append(nodes, n)
		}
	}
	var edges []state.ProposedEdge
	for _, e := range s.edges {
		if e.ReviewState == state.ReviewAccepted {
			edges = append(edges, e)
		}
	}
	if len(nodes) == 0 && len(edges) == 0 {
		s.mu.Unlock()
		return nil, apperrors.ErrNothingAccepted
	}

	s.lastError = nil
	s.setPhase(state.PhaseCommitting)
	s.mu.Unlock()

	result, err := s.opts.Merger.Commit(ctx, nodes, edges, s.opts.Store)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != state.PhaseCommitting {
		// Closed while the merge ran
		return result, err
	}
	s.lastResult = result
	if err != nil {
		s.lastError = err
		s.setPhase(state.PhaseReview)
		s.logger.Warn("Commit failed", zap.Error(err))
		return result, err
	}

	s.sourceText = ""
	s.nodes = nil
	s.edges = nil
	s.existing = nil
	s.setPhase(state.PhaseClosed)
	return result, nil
}

// fail records err and moves to the error phase. Caller holds the lock.
func (s *Session) fail(err error) {
	s.lastError = err
	s.setPhase(state.PhaseError)
}

// setPhase moves to next. Caller holds the lock.
func (s *Session) setPhase(next state.Phase) {
	s.logger.Debug("Session phase changed",
		zap.String("from", string(s.phase)),
		zap.String("to", string(next)),
	)
	s.phase = next
}
