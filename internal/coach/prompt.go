package coach

import (
	"fmt"
	"strings"

	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/models"
)

const promptHistory = 10

func buildPrompt(text string, history []models.Message, profile models.Profile) string {
	var b strings.Builder
	if profile.Niche != "" {
		fmt.Fprintf(&b, "The creator's niche: %s\n", profile.Niche)
	}
	if profile.Experience != "" {
		fmt.Fprintf(&b, "Their experience level: %s\n", profile.Experience)
	}
	if len(history) > promptHistory {
		history = history[len(history)-promptHistory:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
		}
	}
	fmt.Fprintf(&b, "user: %s\n", text)
	return b.String()
}

func synthesisPrompt(catalogue *discovery.Catalogue, answers map[string]models.AnswerValue) string {
	var b strings.Builder
	b.WriteString("The creator is halfway through the discovery questionnaire. ")
	b.WriteString("Summarise what you have learned about their business and suggest a direction.\n")
	for _, phase := range catalogue.Phases() {
		for _, q := range phase.Questions {
			answer, ok := answers[q.Key]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s %s\n", q.Prompt, formatAnswer(answer))
		}
	}
	return b.String()
}

func formatAnswer(a models.AnswerValue) string {
	if a.IsMulti {
		return strings.Join(a.Multi, ", ")
	}
	return a.Single
}
