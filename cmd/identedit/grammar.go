package main

import (
	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/grammarprovider"
)

// grammarCmd is an administrative listing only; registering new grammars
// or tuning parse limits at runtime is out of scope.
var grammarCmd = &cobra.Command{
	Use:   "grammar",
	Short: "Inspect the grammars this build was linked with",
}

var grammarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List file extensions with a registered structural grammar",
	RunE:  runGrammarList,
}

func init() {
	grammarCmd.AddCommand(grammarListCmd)
	rootCmd.AddCommand(grammarCmd)
}

func runGrammarList(cmd *cobra.Command, args []string) error {
	return writeJSON(struct {
		Extensions []string `json:"extensions"`
	}{Extensions: grammarprovider.SupportedExtensions()})
}
