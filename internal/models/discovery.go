package models

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/myrjola/coachline/internal/errors"
)

// DiscoveryStatus is the lifecycle state of the discovery questionnaire.
type DiscoveryStatus string

const (
	DiscoveryNotStarted DiscoveryStatus = "not_started"
	DiscoveryInProgress DiscoveryStatus = "in_progress"
	DiscoveryPaused     DiscoveryStatus = "paused"
	DiscoveryCompleted  DiscoveryStatus = "completed"
)

// Question is static questionnaire configuration.
type Question struct {
	Key         string   `json:"key"          yaml:"key"`
	Prompt      string   `json:"prompt"       yaml:"prompt"`
	Options     []string `json:"options"      yaml:"options"`
	MultiSelect bool     `json:"multi_select" yaml:"multiSelect"`
}

// Phase is an ordered group of questions.
type Phase struct {
	Key       string     `json:"key"       yaml:"key"`
	Title     string     `json:"title"     yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// AnswerValue holds either a single answer or, for multi-select questions, a list of answers.
type AnswerValue struct {
	Single string
	Multi  []string
	// IsMulti distinguishes an empty selection from an empty single answer.
	IsMulti bool
}

// SingleAnswer returns an AnswerValue holding one string.
func SingleAnswer(s string) AnswerValue {
	return AnswerValue{Single: s, Multi: nil, IsMulti: false}
}

// MultiAnswer returns an AnswerValue holding a list of strings.
func MultiAnswer(values ...string) AnswerValue {
	multi := make([]string, len(values))
	copy(multi, values)
	return AnswerValue{Single: "", Multi: multi, IsMulti: true}
}

// MarshalJSON encodes the answer as a JSON string or array of strings.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.IsMulti {
		multi := a.Multi
		if multi == nil {
			multi = []string{}
		}
		return json.Marshal(multi) //nolint:wrapcheck // encoding a []string cannot fail.
	}
	return json.Marshal(a.Single) //nolint:wrapcheck // encoding a string cannot fail.
}

// UnmarshalJSON decodes a JSON string or array of strings.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = SingleAnswer(single)
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return errors.Wrap(err, "answer must be a string or an array of strings")
	}
	*a = MultiAnswer(multi...)
	return nil
}

// DiscoveryState tracks questionnaire progress for one user identity.
type DiscoveryState struct {
	Status                      DiscoveryStatus        `json:"status"`
	CurrentPhaseIndex           int                    `json:"current_phase_index"`
	CurrentQuestionIndexInPhase int                    `json:"current_question_index_in_phase"`
	Answers                     map[string]AnswerValue `json:"answers"`
}

// NewDiscoveryState returns the state of a questionnaire that has not been started.
func NewDiscoveryState() DiscoveryState {
	return DiscoveryState{
		Status:                      DiscoveryNotStarted,
		CurrentPhaseIndex:           0,
		CurrentQuestionIndexInPhase: 0,
		Answers:                     map[string]AnswerValue{},
	}
}

// Clone returns a deep copy so that transitions never share the answers map.
func (s DiscoveryState) Clone() DiscoveryState {
	out := s
	out.Answers = make(map[string]AnswerValue, len(s.Answers))
	for k, v := range s.Answers {
		if v.IsMulti {
			v.Multi = slices.Clone(v.Multi)
		}
		out.Answers[k] = v
	}
	return out
}

// AnswerKeys returns the answered question keys in sorted order.
func (s DiscoveryState) AnswerKeys() []string {
	return slices.Sorted(maps.Keys(s.Answers))
}

// Profile is the per-identity record that carries the discovery state and the attributes used for caching.
type Profile struct {
	Niche      string         `json:"niche,omitempty"`
	Experience string         `json:"experience,omitempty"`
	Discovery  DiscoveryState `json:"discovery"`
}
