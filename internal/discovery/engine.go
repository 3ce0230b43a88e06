package discovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
)

const (
	nicheKey      = "niche"
	experienceKey = "experience"
)

var (
	ErrNotInProgress = errors.NewSentinel("discovery is not in progress")
	ErrInvalidAnswer = errors.NewSentinel("invalid discovery answer")
)

// ProfileWriter persists the profile that carries the discovery state.
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, profile models.Profile) (storage.ProfileEnvelope, error)
}

// Engine owns the discovery state of one session.
//
// Transitions are applied in memory first and persisted afterwards, so a slow or failing write never holds
// back the visible state. Only durable engines persist.
type Engine struct {
	catalogue *Catalogue
	writer    ProfileWriter
	durable   bool
	logger    *slog.Logger

	mu      sync.Mutex
	profile models.Profile
	version uint64

	persistMu sync.Mutex
	persisted uint64
}

// NewEngine creates an engine starting from profile.
//
// Engines that are not durable belong to anonymous sessions and always start from a fresh questionnaire.
func NewEngine(
	catalogue *Catalogue,
	writer ProfileWriter,
	profile models.Profile,
	durable bool,
	logger *slog.Logger,
) *Engine {
	if !durable || profile.Discovery.Status == "" {
		profile.Discovery = models.NewDiscoveryState()
	} else {
		profile.Discovery = profile.Discovery.Clone()
	}
	return &Engine{
		catalogue: catalogue,
		writer:    writer,
		durable:   durable,
		logger:    logger.With(slog.String("source", "discovery.Engine")),
		mu:        sync.Mutex{},
		profile:   profile,
		version:   0,
		persistMu: sync.Mutex{},
		persisted: 0,
	}
}

// Start begins or resumes the questionnaire.
func (e *Engine) Start(ctx context.Context) models.DiscoveryState {
	state, _ := e.apply(ctx, Start{})
	return state
}

// Answer records value for the question key and advances the questionnaire.
func (e *Engine) Answer(ctx context.Context, key string, value models.AnswerValue) (models.DiscoveryState, []Signal) {
	return e.apply(ctx, Answer{Key: key, Value: value})
}

// AnswerCurrent answers the question the questionnaire is waiting for. An empty key means the current question.
//
// The checks and the transition happen under the same lock, so a repeated answer to a question that has just
// been answered is refused instead of advancing the questionnaire a second time.
func (e *Engine) AnswerCurrent(
	ctx context.Context,
	key string,
	value models.AnswerValue,
) (models.DiscoveryState, []Signal, error) {
	e.mu.Lock()
	state := e.profile.Discovery
	if state.Status != models.DiscoveryInProgress {
		e.mu.Unlock()
		return state.Clone(), nil, errors.Wrap(ErrNotInProgress, "answer discovery question",
			slog.String("status", string(state.Status)))
	}
	question, ok := e.catalogue.CurrentQuestion(state)
	if !ok {
		e.mu.Unlock()
		return state.Clone(), nil, errors.Wrap(ErrNotInProgress, "no current question")
	}
	if key == "" {
		key = question.Key
	}
	if key != question.Key {
		e.mu.Unlock()
		return state.Clone(), nil, errors.Wrap(ErrInvalidAnswer, "answer is not for the current question",
			slog.String("key", key), slog.String("expected", question.Key))
	}
	if value.IsMulti != question.MultiSelect {
		e.mu.Unlock()
		return state.Clone(), nil, errors.Wrap(ErrInvalidAnswer, "answer arity does not match the question",
			slog.String("key", key), slog.Bool("multi_select", question.MultiSelect))
	}
	next, signals, version, profile := e.transitionLocked(Answer{Key: key, Value: value})
	e.mu.Unlock()

	e.persist(ctx, version, profile)
	return next.Clone(), signals, nil
}

// Pause suspends an in-progress questionnaire.
func (e *Engine) Pause(ctx context.Context) models.DiscoveryState {
	state, _ := e.apply(ctx, Pause{})
	return state
}

// PauseIfActive pauses the questionnaire when it is in progress and waits for the write to finish.
// It reports whether a pause happened.
func (e *Engine) PauseIfActive(ctx context.Context) bool {
	e.mu.Lock()
	active := e.profile.Discovery.Status == models.DiscoveryInProgress
	e.mu.Unlock()
	if !active {
		return false
	}
	e.Pause(ctx)
	return true
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() models.DiscoveryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Discovery.Clone()
}

// Profile returns a copy of the profile including the current state.
func (e *Engine) Profile() models.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.profile
	p.Discovery = p.Discovery.Clone()
	return p
}

func (e *Engine) Progress() int {
	return CompletionPercentage(e.catalogue, e.Snapshot())
}

func (e *Engine) CurrentQuestion() (models.Question, bool) {
	state := e.Snapshot()
	if state.Status == models.DiscoveryCompleted {
		return models.Question{}, false //nolint:exhaustruct // no question left.
	}
	return e.catalogue.CurrentQuestion(state)
}

func (e *Engine) Catalogue() *Catalogue {
	return e.catalogue
}

func (e *Engine) apply(ctx context.Context, ev Event) (models.DiscoveryState, []Signal) {
	e.mu.Lock()
	next, signals, version, profile := e.transitionLocked(ev)
	e.mu.Unlock()

	e.persist(ctx, version, profile)
	return next.Clone(), signals
}

// transitionLocked must be called with mu held. It returns the profile to persist and its version.
func (e *Engine) transitionLocked(ev Event) (models.DiscoveryState, []Signal, uint64, models.Profile) {
	next, signals := Transition(e.catalogue, e.profile.Discovery, ev)
	e.profile.Discovery = next
	if a, ok := ev.(Answer); ok && !a.Value.IsMulti {
		switch a.Key {
		case nicheKey:
			e.profile.Niche = a.Value.Single
		case experienceKey:
			e.profile.Experience = a.Value.Single
		}
	}
	e.version++
	profile := e.profile
	profile.Discovery = next.Clone()
	return next, signals, e.version, profile
}

func (e *Engine) persist(ctx context.Context, version uint64, profile models.Profile) {
	if !e.durable {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if version <= e.persisted {
		// A newer state has already been written.
		return
	}
	if _, err := e.writer.UpdateProfile(ctx, profile); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to persist discovery state",
			errors.SlogError(err), slog.String("status", string(profile.Discovery.Status)))
		return
	}
	e.persisted = version
}
