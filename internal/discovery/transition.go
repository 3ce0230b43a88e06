package discovery

import (
	"math"

	"github.com/myrjola/coachline/internal/models"
)

const (
	midpointLow  = 50
	midpointHigh = 55
)

// Event drives a discovery transition.
type Event interface {
	event()
}

// Start begins the questionnaire or resumes it after a pause.
type Start struct{}

// Answer records the answer to a question and advances to the next one.
type Answer struct {
	Key   string
	Value models.AnswerValue
}

// Pause suspends an in-progress questionnaire.
type Pause struct{}

func (Start) event()  {}
func (Answer) event() {}
func (Pause) event()  {}

// Signal is a one-shot notification emitted by a transition. Signals are not part of the state.
type Signal interface {
	signal()
}

// PhaseCompleted is emitted when the last question of a phase has been answered.
type PhaseCompleted struct {
	PhaseIndex int
	Title      string
}

// Midpoint is emitted when an answer moves the completion percentage across the 50% mark.
type Midpoint struct {
	Answers map[string]models.AnswerValue
}

// Completed is emitted when the last question of the last phase has been answered.
type Completed struct{}

func (PhaseCompleted) signal() {}
func (Midpoint) signal()       {}
func (Completed) signal()      {}

// Transition computes the state that follows event. The input state is never mutated.
//
// Answering while the questionnaire is not in progress is a caller contract violation. The answer is still
// recorded, but the position only moves when it points at a valid phase.
func Transition(c *Catalogue, state models.DiscoveryState, ev Event) (models.DiscoveryState, []Signal) {
	next := state.Clone()
	switch e := ev.(type) {
	case Start:
		if state.Status == models.DiscoveryNotStarted || state.Status == models.DiscoveryPaused {
			next.Status = models.DiscoveryInProgress
		}
		return next, nil
	case Pause:
		if state.Status == models.DiscoveryInProgress {
			next.Status = models.DiscoveryPaused
		}
		return next, nil
	case Answer:
		return answer(c, state, next, e)
	default:
		return next, nil
	}
}

func answer(c *Catalogue, before, next models.DiscoveryState, e Answer) (models.DiscoveryState, []Signal) {
	var signals []Signal
	next.Answers[e.Key] = e.Value

	phase, ok := c.Phase(next.CurrentPhaseIndex)
	if !ok {
		return next, nil
	}
	nextQuestion := next.CurrentQuestionIndexInPhase + 1
	nextPhase := next.CurrentPhaseIndex
	if nextQuestion >= len(phase.Questions) {
		signals = append(signals, PhaseCompleted{PhaseIndex: next.CurrentPhaseIndex, Title: phase.Title})
		nextPhase++
		nextQuestion = 0
	}
	next.CurrentPhaseIndex = nextPhase
	next.CurrentQuestionIndexInPhase = nextQuestion
	if nextPhase >= c.PhaseCount() {
		next.Status = models.DiscoveryCompleted
		next.CurrentPhaseIndex = c.PhaseCount()
		signals = append(signals, Completed{})
	}

	percentBefore := rawPercentage(c, before)
	percentAfter := rawPercentage(c, next)
	if percentBefore < midpointLow && percentAfter >= midpointLow && percentAfter < midpointHigh &&
		next.CurrentPhaseIndex < c.PhaseCount()-1 {
		signals = append(signals, Midpoint{Answers: next.Clone().Answers})
	}
	return next, signals
}

func rawPercentage(c *Catalogue, state models.DiscoveryState) int {
	if c.TotalQuestions() == 0 {
		return 0
	}
	return int(math.Round(100 * float64(len(state.Answers)) / float64(c.TotalQuestions())))
}

// CompletionPercentage reports progress in [0,100]. It is 100 only for a completed questionnaire.
func CompletionPercentage(c *Catalogue, state models.DiscoveryState) int {
	if state.Status == models.DiscoveryCompleted {
		return 100 //nolint:mnd // complete.
	}
	return min(max(rawPercentage(c, state), 0), 99) //nolint:mnd // only completion reports 100.
}
