package discovery_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
	"github.com/myrjola/coachline/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	profiles []models.Profile
	err      error
}

func (w *recordingWriter) UpdateProfile(_ context.Context, p models.Profile) (storage.ProfileEnvelope, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return storage.ProfileEnvelope{}, w.err
	}
	w.profiles = append(w.profiles, p)
	var env storage.ProfileEnvelope
	env.Data.Profile = p
	return env, nil
}

func (w *recordingWriter) last(t *testing.T) models.Profile {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	require.NotEmpty(t, w.profiles)
	return w.profiles[len(w.profiles)-1]
}

// answerAll answers n questions in catalogue order starting from state.
func answerAll(c *discovery.Catalogue, state models.DiscoveryState, n int) models.DiscoveryState {
	for range n {
		q, ok := c.CurrentQuestion(state)
		if !ok {
			return state
		}
		state, _ = discovery.Transition(c, state, discovery.Answer{Key: q.Key, Value: models.SingleAnswer("x")})
	}
	return state
}

func started(c *discovery.Catalogue) models.DiscoveryState {
	state, _ := discovery.Transition(c, models.NewDiscoveryState(), discovery.Start{})
	return state
}

func TestDefaultCatalogue(t *testing.T) {
	c := discovery.DefaultCatalogue()
	assert.Equal(t, 5, c.PhaseCount())
	assert.Equal(t, 20, c.TotalQuestions())
	q, ok := c.CurrentQuestion(models.NewDiscoveryState())
	require.True(t, ok)
	assert.Equal(t, "niche", q.Key)
}

func TestNewCatalogue_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		phases []models.Phase
	}{
		{name: "no phases", phases: nil},
		{name: "empty phase", phases: []models.Phase{{Key: "a", Title: "A", Questions: nil}}},
		{
			name: "duplicate key",
			phases: []models.Phase{
				{Key: "a", Title: "A", Questions: []models.Question{{Key: "q", Prompt: "?", Options: nil, MultiSelect: false}}},
				{Key: "b", Title: "B", Questions: []models.Question{{Key: "q", Prompt: "?", Options: nil, MultiSelect: false}}},
			},
		},
		{
			name: "missing key",
			phases: []models.Phase{
				{Key: "a", Title: "A", Questions: []models.Question{{Key: "", Prompt: "?", Options: nil, MultiSelect: false}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := discovery.NewCatalogue(tt.phases)
			require.ErrorIs(t, err, discovery.ErrInvalidCatalogue)
		})
	}
}

func TestParseCatalogue(t *testing.T) {
	c, err := discovery.ParseCatalogue([]byte(`
- key: only
  title: Only
  questions:
    - key: colour
      prompt: Favourite colours?
      options: [red, green]
      multiSelect: true
`))
	require.NoError(t, err)
	phases := c.Phases()
	require.Len(t, phases, 1)
	assert.True(t, phases[0].Questions[0].MultiSelect)
	assert.Equal(t, []string{"red", "green"}, phases[0].Questions[0].Options)

	_, err = discovery.ParseCatalogue([]byte("{not: [yaml"))
	require.Error(t, err)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	c := discovery.DefaultCatalogue()
	before := started(c)
	snapshot := before.Clone()
	_, _ = discovery.Transition(c, before, discovery.Answer{Key: "niche", Value: models.SingleAnswer("fitness")})
	assert.Equal(t, snapshot, before)
}

func TestTransition_StartAndPause(t *testing.T) {
	c := discovery.DefaultCatalogue()
	state := answerAll(c, started(c), 6)

	paused, signals := discovery.Transition(c, state, discovery.Pause{})
	assert.Empty(t, signals)
	assert.Equal(t, models.DiscoveryPaused, paused.Status)

	resumed, _ := discovery.Transition(c, paused, discovery.Start{})
	assert.Equal(t, models.DiscoveryInProgress, resumed.Status)
	assert.Equal(t, state.CurrentPhaseIndex, resumed.CurrentPhaseIndex)
	assert.Equal(t, state.CurrentQuestionIndexInPhase, resumed.CurrentQuestionIndexInPhase)
	assert.Equal(t, state.Answers, resumed.Answers)

	t.Run("pause only from in progress", func(t *testing.T) {
		fresh := models.NewDiscoveryState()
		next, _ := discovery.Transition(c, fresh, discovery.Pause{})
		assert.Equal(t, models.DiscoveryNotStarted, next.Status)
	})

	t.Run("start does not reopen a completed questionnaire", func(t *testing.T) {
		done := answerAll(c, started(c), c.TotalQuestions())
		next, _ := discovery.Transition(c, done, discovery.Start{})
		assert.Equal(t, models.DiscoveryCompleted, next.Status)
	})
}

func TestTransition_PhaseAdvance(t *testing.T) {
	c := discovery.DefaultCatalogue()
	state := answerAll(c, started(c), 3)
	require.Equal(t, 0, state.CurrentPhaseIndex)
	require.Equal(t, 3, state.CurrentQuestionIndexInPhase)

	next, signals := discovery.Transition(c, state, discovery.Answer{Key: "weekly_hours", Value: models.SingleAnswer("5-10")})
	assert.Equal(t, 1, next.CurrentPhaseIndex)
	assert.Equal(t, 0, next.CurrentQuestionIndexInPhase)
	assert.Equal(t, models.DiscoveryInProgress, next.Status)
	assert.Contains(t, signals, discovery.Signal(discovery.PhaseCompleted{PhaseIndex: 0, Title: "Foundations"}))
}

func TestTransition_Completion(t *testing.T) {
	c := discovery.DefaultCatalogue()
	state := answerAll(c, started(c), c.TotalQuestions()-1)
	require.Equal(t, models.DiscoveryInProgress, state.Status)
	assert.Equal(t, 95, discovery.CompletionPercentage(c, state))

	done, signals := discovery.Transition(c, state, discovery.Answer{Key: "goal_success", Value: models.SingleAnswer("x")})
	assert.Equal(t, models.DiscoveryCompleted, done.Status)
	assert.Equal(t, c.PhaseCount(), done.CurrentPhaseIndex)
	assert.Equal(t, 100, discovery.CompletionPercentage(c, done))
	assert.Contains(t, signals, discovery.Signal(discovery.PhaseCompleted{PhaseIndex: 4, Title: "Goals"}))
	assert.Contains(t, signals, discovery.Signal(discovery.Completed{}))
}

func TestTransition_AnswersAreMonotone(t *testing.T) {
	c := discovery.DefaultCatalogue()
	state := started(c)
	prev := 0
	for i := range c.TotalQuestions() {
		q, ok := c.CurrentQuestion(state)
		require.True(t, ok)
		state, _ = discovery.Transition(c, state, discovery.Answer{Key: q.Key, Value: models.SingleAnswer(fmt.Sprint(i))})
		require.GreaterOrEqual(t, len(state.Answers), prev)
		prev = len(state.Answers)
	}

	// Overwriting keeps the key count.
	again, _ := discovery.Transition(c, state, discovery.Answer{Key: "niche", Value: models.SingleAnswer("other")})
	assert.Len(t, again.Answers, prev)
	assert.Equal(t, models.SingleAnswer("other"), again.Answers["niche"])
}

func TestCompletionPercentage_Range(t *testing.T) {
	c := discovery.DefaultCatalogue()
	state := started(c)
	for range c.TotalQuestions() {
		percent := discovery.CompletionPercentage(c, state)
		assert.GreaterOrEqual(t, percent, 0)
		assert.LessOrEqual(t, percent, 100)
		assert.Equal(t, state.Status == models.DiscoveryCompleted, percent == 100)
		state = answerAll(c, state, 1)
	}
	assert.Equal(t, 100, discovery.CompletionPercentage(c, state))

	t.Run("stray keys never report 100 before completion", func(t *testing.T) {
		s := started(c)
		for i := range 40 {
			s.Answers[fmt.Sprintf("stray_%d", i)] = models.SingleAnswer("x")
		}
		assert.Equal(t, 99, discovery.CompletionPercentage(c, s))
	})
}

func TestTransition_Midpoint(t *testing.T) {
	c := discovery.DefaultCatalogue()
	var midpoints []discovery.Midpoint
	state := started(c)
	for range c.TotalQuestions() {
		q, ok := c.CurrentQuestion(state)
		require.True(t, ok)
		var signals []discovery.Signal
		state, signals = discovery.Transition(c, state, discovery.Answer{Key: q.Key, Value: models.SingleAnswer("x")})
		for _, s := range signals {
			if m, isMidpoint := s.(discovery.Midpoint); isMidpoint {
				midpoints = append(midpoints, m)
			}
		}
	}
	require.Len(t, midpoints, 1)
	assert.Len(t, midpoints[0].Answers, 10)

	t.Run("overwrite at the midpoint does not fire", func(t *testing.T) {
		s := answerAll(c, started(c), 10)
		_, signals := discovery.Transition(c, s, discovery.Answer{Key: "niche", Value: models.SingleAnswer("y")})
		for _, sig := range signals {
			_, isMidpoint := sig.(discovery.Midpoint)
			assert.False(t, isMidpoint)
		}
	})
}

func TestEngine_AnonymousIsNotDurable(t *testing.T) {
	ctx := context.Background()
	logger, _ := testhelpers.NewBufferedLogger(t)
	writer := &recordingWriter{} //nolint:exhaustruct // zero value.
	stored := models.Profile{Niche: "", Experience: "", Discovery: answerAll(discovery.DefaultCatalogue(),
		started(discovery.DefaultCatalogue()), 5)}

	e := discovery.NewEngine(discovery.DefaultCatalogue(), writer, stored, false, logger)
	assert.Equal(t, models.DiscoveryNotStarted, e.Snapshot().Status)
	assert.Empty(t, e.Snapshot().Answers)

	e.Start(ctx)
	e.Answer(ctx, "niche", models.SingleAnswer("yoga"))
	assert.Empty(t, writer.profiles)
	assert.Equal(t, "yoga", e.Profile().Niche)
}

func TestEngine_PersistsDurableTransitions(t *testing.T) {
	ctx := context.Background()
	logger, _ := testhelpers.NewBufferedLogger(t)
	writer := &recordingWriter{} //nolint:exhaustruct // zero value.

	e := discovery.NewEngine(discovery.DefaultCatalogue(), writer, emptyProfile(), true, logger)

	e.Start(ctx)
	assert.Equal(t, models.DiscoveryInProgress, writer.last(t).Discovery.Status)

	e.Answer(ctx, "niche", models.SingleAnswer("yoga"))
	e.Answer(ctx, "experience", models.SingleAnswer("beginner"))
	last := writer.last(t)
	assert.Equal(t, "yoga", last.Niche)
	assert.Equal(t, "beginner", last.Experience)
	assert.Equal(t, 2, last.Discovery.CurrentQuestionIndexInPhase)

	q, ok := e.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, "motivation", q.Key)
	assert.Equal(t, 10, e.Progress())

	require.True(t, e.PauseIfActive(ctx))
	assert.Equal(t, models.DiscoveryPaused, writer.last(t).Discovery.Status)
	assert.False(t, e.PauseIfActive(ctx))
	assert.Len(t, writer.profiles, 4)
}

func TestEngine_AnswerCurrent(t *testing.T) {
	ctx := context.Background()
	logger, _ := testhelpers.NewBufferedLogger(t)
	e := discovery.NewEngine(discovery.DefaultCatalogue(), &recordingWriter{}, emptyProfile(), true, logger) //nolint:exhaustruct // zero value.

	_, _, err := e.AnswerCurrent(ctx, "niche", models.SingleAnswer("yoga"))
	require.ErrorIs(t, err, discovery.ErrNotInProgress)

	e.Start(ctx)
	tests := []struct {
		name  string
		key   string
		value models.AnswerValue
	}{
		{name: "not the current question", key: "experience", value: models.SingleAnswer("beginner")},
		{name: "wrong arity", key: "niche", value: models.MultiAnswer("yoga")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, signals, err := e.AnswerCurrent(ctx, tt.key, tt.value)
			require.ErrorIs(t, err, discovery.ErrInvalidAnswer)
			assert.Empty(t, signals)
			assert.Empty(t, state.Answers)
		})
	}

	state, _, err := e.AnswerCurrent(ctx, "", models.SingleAnswer("yoga"))
	require.NoError(t, err)
	assert.Equal(t, models.SingleAnswer("yoga"), state.Answers["niche"])
	assert.Equal(t, 1, state.CurrentQuestionIndexInPhase)

	// Answering the same question again is refused once it has moved on.
	_, _, err = e.AnswerCurrent(ctx, "niche", models.SingleAnswer("pilates"))
	require.ErrorIs(t, err, discovery.ErrInvalidAnswer)
	assert.Equal(t, 1, e.Snapshot().CurrentQuestionIndexInPhase)
	assert.Equal(t, "yoga", e.Profile().Niche)
}

func TestEngine_ConcurrentAnswersToOneQuestion(t *testing.T) {
	ctx := context.Background()
	logger, _ := testhelpers.NewBufferedLogger(t)
	e := discovery.NewEngine(discovery.DefaultCatalogue(), &recordingWriter{}, emptyProfile(), true, logger) //nolint:exhaustruct // zero value.
	e.Start(ctx)

	const submits = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range submits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.AnswerCurrent(ctx, "niche", models.SingleAnswer("yoga"))
			if err != nil {
				assert.ErrorIs(t, err, discovery.ErrInvalidAnswer)
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	state := e.Snapshot()
	assert.Len(t, state.Answers, 1)
	assert.Equal(t, 1, state.CurrentQuestionIndexInPhase)
	q, ok := e.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, "experience", q.Key)
}

func TestEngine_ResumesStoredState(t *testing.T) {
	logger, _ := testhelpers.NewBufferedLogger(t)
	c := discovery.DefaultCatalogue()
	stored := answerAll(c, started(c), 5)
	stored, _ = discovery.Transition(c, stored, discovery.Pause{})

	e := discovery.NewEngine(c, &recordingWriter{}, models.Profile{Niche: "", Experience: "", Discovery: stored}, true, logger) //nolint:exhaustruct // zero value.
	state := e.Start(context.Background())
	assert.Equal(t, models.DiscoveryInProgress, state.Status)
	assert.Equal(t, 1, state.CurrentPhaseIndex)
	assert.Equal(t, 1, state.CurrentQuestionIndexInPhase)
	assert.Len(t, state.Answers, 5)
}

func TestEngine_PersistenceFailureKeepsState(t *testing.T) {
	logger, logs := testhelpers.NewBufferedLogger(t)
	writer := &recordingWriter{err: errors.New("network down")} //nolint:exhaustruct // only the error matters.

	e := discovery.NewEngine(discovery.DefaultCatalogue(), writer, emptyProfile(), true, logger)

	state := e.Start(context.Background())
	assert.Equal(t, models.DiscoveryInProgress, state.Status)
	assert.Equal(t, models.DiscoveryInProgress, e.Snapshot().Status)
	assert.Contains(t, logs.String(), "failed to persist discovery state")
}

func emptyProfile() models.Profile {
	return models.Profile{Niche: "", Experience: "", Discovery: models.DiscoveryState{}} //nolint:exhaustruct // empty.
}
