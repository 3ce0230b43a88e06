package coach

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
)

const discoveryTitle = "Discovery"

var (
	ErrDiscoveryNotInProgress = discovery.ErrNotInProgress
	ErrInvalidAnswer          = discovery.ErrInvalidAnswer
)

// DiscoveryView is the questionnaire state as presented to the user.
type DiscoveryView struct {
	State    models.DiscoveryState `json:"state"`
	Progress int                   `json:"progress"`
	// Question is the next question to answer, nil when there is none.
	Question   *models.Question `json:"question,omitempty"`
	PhaseTitle string           `json:"phaseTitle,omitempty"`
}

// DiscoveryResult is the outcome of answering a question.
type DiscoveryResult struct {
	DiscoveryView
	// Messages are assistant messages appended to the active conversation by phase and midpoint signals.
	Messages []models.Message `json:"messages"`
}

func (s *Session) DiscoveryStatus() DiscoveryView {
	return s.view(s.engine.Snapshot())
}

func (s *Session) view(state models.DiscoveryState) DiscoveryView {
	v := DiscoveryView{
		State:      state,
		Progress:   discovery.CompletionPercentage(s.engine.Catalogue(), state),
		Question:   nil,
		PhaseTitle: "",
	}
	if state.Status == models.DiscoveryCompleted {
		return v
	}
	if q, ok := s.engine.Catalogue().CurrentQuestion(state); ok {
		v.Question = &q
	}
	if phase, ok := s.engine.Catalogue().Phase(state.CurrentPhaseIndex); ok {
		v.PhaseTitle = phase.Title
	}
	return v
}

// StartDiscovery starts or resumes the questionnaire.
func (s *Session) StartDiscovery(ctx context.Context) DiscoveryView {
	return s.view(s.engine.Start(ctx))
}

func (s *Session) PauseDiscovery(ctx context.Context) DiscoveryView {
	return s.view(s.engine.Pause(ctx))
}

// AnswerDiscovery answers the current question. An empty key answers the current question.
func (s *Session) AnswerDiscovery(ctx context.Context, key string, value models.AnswerValue) (DiscoveryResult, error) {
	var result DiscoveryResult
	state, signals, err := s.engine.AnswerCurrent(ctx, key, value)
	if err != nil {
		return result, err
	}
	result.DiscoveryView = s.view(state)
	result.Messages = []models.Message{}
	for _, signal := range signals {
		text := s.signalText(ctx, signal)
		if text == "" {
			continue
		}
		m, err := s.appendAssistant(ctx, text)
		if err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to append discovery message", errors.SlogError(err))
			continue
		}
		result.Messages = append(result.Messages, m)
	}
	return result, nil
}

func (s *Session) signalText(ctx context.Context, signal discovery.Signal) string {
	switch sig := signal.(type) {
	case discovery.PhaseCompleted:
		return fmt.Sprintf("Nice work! You've completed the %s phase.", sig.Title)
	case discovery.Completed:
		return "That's the whole questionnaire done. I now have a good picture of your business."
	case discovery.Midpoint:
		resp, err := s.collaborator.Invoke(ctx, synthesisPrompt(s.engine.Catalogue(), sig.Answers),
			models.ResponseKindBase)
		if err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "midpoint synthesis failed", errors.SlogError(err))
			return ""
		}
		if resp == nil {
			return ""
		}
		return resp.Text()
	default:
		return ""
	}
}

// appendAssistant adds an assistant message to the active conversation, starting one if needed.
func (s *Session) appendAssistant(ctx context.Context, text string) (models.Message, error) {
	id := s.ActiveConversation()
	if id == "" {
		conversation, err := s.createConversation(ctx, discoveryTitle)
		if err != nil {
			return models.Message{}, err //nolint:exhaustruct // error.
		}
		id = conversation.ID
		s.setActive(id)
	}
	return s.storeMessage(ctx, id, text, models.SenderAssistant, nil)
}
