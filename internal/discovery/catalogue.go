package discovery

import (
	_ "embed"
	"log/slog"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var defaultPhases []byte

var ErrInvalidCatalogue = errors.NewSentinel("invalid discovery catalogue")

// Catalogue is the static, ordered questionnaire. It is never mutated after construction.
type Catalogue struct {
	phases []models.Phase
	total  int
}

// NewCatalogue validates phases and precomputes the total question count.
func NewCatalogue(phases []models.Phase) (*Catalogue, error) {
	if len(phases) == 0 {
		return nil, errors.Wrap(ErrInvalidCatalogue, "no phases")
	}
	seen := map[string]bool{}
	total := 0
	for _, phase := range phases {
		if len(phase.Questions) == 0 {
			return nil, errors.Wrap(ErrInvalidCatalogue, "phase without questions", slog.String("phase", phase.Key))
		}
		for _, question := range phase.Questions {
			if question.Key == "" {
				return nil, errors.Wrap(ErrInvalidCatalogue, "question without key", slog.String("phase", phase.Key))
			}
			if seen[question.Key] {
				return nil, errors.Wrap(ErrInvalidCatalogue, "duplicate question key",
					slog.String("question", question.Key))
			}
			seen[question.Key] = true
		}
		total += len(phase.Questions)
	}
	return &Catalogue{phases: phases, total: total}, nil
}

// ParseCatalogue reads a catalogue from YAML.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var phases []models.Phase
	if err := yaml.Unmarshal(data, &phases); err != nil {
		return nil, errors.Wrap(err, "decode catalogue yaml")
	}
	return NewCatalogue(phases)
}

// DefaultCatalogue returns the embedded questionnaire.
func DefaultCatalogue() *Catalogue {
	c, err := ParseCatalogue(defaultPhases)
	if err != nil {
		panic(err)
	}
	return c
}

// Phases returns a copy of the phase list.
func (c *Catalogue) Phases() []models.Phase {
	out := make([]models.Phase, len(c.phases))
	copy(out, c.phases)
	return out
}

func (c *Catalogue) PhaseCount() int {
	return len(c.phases)
}

func (c *Catalogue) TotalQuestions() int {
	return c.total
}

// Phase returns the phase at index i.
func (c *Catalogue) Phase(i int) (models.Phase, bool) {
	if i < 0 || i >= len(c.phases) {
		return models.Phase{}, false //nolint:exhaustruct // zero value signals absence.
	}
	return c.phases[i], true
}

// CurrentQuestion returns the question the state points at.
func (c *Catalogue) CurrentQuestion(state models.DiscoveryState) (models.Question, bool) {
	phase, ok := c.Phase(state.CurrentPhaseIndex)
	if !ok || state.CurrentQuestionIndexInPhase < 0 || state.CurrentQuestionIndexInPhase >= len(phase.Questions) {
		return models.Question{}, false //nolint:exhaustruct // zero value signals absence.
	}
	return phase.Questions[state.CurrentQuestionIndexInPhase], true
}
