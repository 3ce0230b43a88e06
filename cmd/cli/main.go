package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/coachline/cmd/cli/ask"
	"github.com/myrjola/coachline/cmd/cli/inspect"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(inspect.Group)
	rootCmd.AddCommand(inspect.Phases, inspect.Classify, inspect.Fingerprint)
	rootCmd.AddGroup(ask.Group)
	rootCmd.AddCommand(ask.Ask)
}

var rootCmd = &cobra.Command{
	Use:  "coachline-cli",
	Long: `Command line utilities for the coachline coach`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
