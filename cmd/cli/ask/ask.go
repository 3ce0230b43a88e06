// Package ask holds the command that asks the language model directly, bypassing conversations and the cache.
package ask

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/myrjola/coachline/internal/ai"
	"github.com/myrjola/coachline/internal/classifier"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "ai",
	Title: "Language model",
}

func init() {
	Ask.Flags().String("kind", "", "response kind, defaults to the kind the classifier picks")
	Ask.Flags().String("model", "", "chat model, defaults to "+ai.DefaultModel)
}

var Ask = &cobra.Command{
	Use:     "ask [prompt]",
	GroupID: "ai",
	Short:   "Ask the coach model",
	Long:    `Sends a prompt to the OpenAI compatible API configured by OPENAI_API_KEY and OPENAI_BASE_URL`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		kindFlag, err := cmd.Flags().GetString("kind")
		if err != nil {
			return errors.Wrap(err, "invalid kind flag")
		}
		model, err := cmd.Flags().GetString("model")
		if err != nil {
			return errors.Wrap(err, "invalid model flag")
		}
		kind := models.ResponseKind(kindFlag)
		if kind == "" {
			kind = classifier.SchemaFor(classifier.Classify(prompt, nil))
		}

		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
		client := ai.NewClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"), model, nil, logger)
		resp, err := client.Invoke(cmd.Context(), prompt, kind)
		if err != nil {
			return errors.Wrap(err, "invoke model", slog.String("kind", string(kind)))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err = enc.Encode(resp); err != nil {
			return errors.Wrap(err, "encode response")
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "kind: %s\n", resp.Kind())
		return nil
	},
}
