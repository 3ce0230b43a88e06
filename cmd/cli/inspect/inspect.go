// Package inspect holds commands that show how the coach sees a message without calling the language model.
package inspect

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/myrjola/coachline/internal/cache"
	"github.com/myrjola/coachline/internal/classifier"
	"github.com/myrjola/coachline/internal/discovery"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "inspect",
	Title: "Inspection",
}

func init() {
	Phases.Flags().String("file", "", "phases YAML file, defaults to the built-in questionnaire")
	Fingerprint.Flags().String("niche", "", "profile niche")
	Fingerprint.Flags().String("experience", "", "profile experience level")
}

var Phases = &cobra.Command{
	Use:     "phases",
	GroupID: "inspect",
	Short:   "List the discovery questionnaire",
	Long:    `Validates the discovery phases and prints every question with its options`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalogue := discovery.DefaultCatalogue()
		path, err := cmd.Flags().GetString("file")
		if err != nil {
			return errors.Wrap(err, "invalid file flag")
		}
		if path != "" {
			var data []byte
			if data, err = os.ReadFile(path); err != nil {
				return errors.Wrap(err, "read phases file")
			}
			if catalogue, err = discovery.ParseCatalogue(data); err != nil {
				return errors.Wrap(err, "parse phases file")
			}
		}
		out := cmd.OutOrStdout()
		for i, phase := range catalogue.Phases() {
			_, _ = fmt.Fprintf(out, "%d. %s (%s)\n", i+1, phase.Title, phase.Key)
			for _, q := range phase.Questions {
				kind := "single"
				if q.MultiSelect {
					kind = "multi"
				}
				_, _ = fmt.Fprintf(out, "   - %s [%s] %s\n", q.Key, kind, q.Prompt)
				if len(q.Options) > 0 {
					_, _ = fmt.Fprintf(out, "     options: %s\n", strings.Join(q.Options, ", "))
				}
			}
		}
		_, _ = fmt.Fprintf(out, "%d phases, %d questions\n", catalogue.PhaseCount(), catalogue.TotalQuestions())
		return nil
	},
}

type classification struct {
	classifier.Descriptor
	Kind models.ResponseKind `json:"kind"`
}

var Classify = &cobra.Command{
	Use:     "classify [message]",
	GroupID: "inspect",
	Short:   "Classify a message",
	Long:    `Prints the context descriptor and the response kind the coach would request for a message`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := classifier.Classify(strings.Join(args, " "), nil)
		return writeJSON(cmd, classification{Descriptor: d, Kind: classifier.SchemaFor(d)})
	},
}

var Fingerprint = &cobra.Command{
	Use:     "fingerprint [message]",
	GroupID: "inspect",
	Short:   "Fingerprint a message",
	Long:    `Prints the response cache fingerprint of a message asked without history`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		niche, err := cmd.Flags().GetString("niche")
		if err != nil {
			return errors.Wrap(err, "invalid niche flag")
		}
		experience, err := cmd.Flags().GetString("experience")
		if err != nil {
			return errors.Wrap(err, "invalid experience flag")
		}
		profile := models.Profile{Niche: niche, Experience: experience, Discovery: models.NewDiscoveryState()}
		fp := cache.Fingerprint(classifier.Classify(strings.Join(args, " "), nil), profile)
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), fp)
		return nil
	},
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode output")
	}
	return nil
}
