package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/identedit/identedit/internal/parseindex"
	"github.com/identedit/identedit/internal/schema"
)

var (
	readKind        []string
	readExcludeKind []string
	readNameGlob    string
	readMode        string
	readVerbose     bool
	readJSON        bool
)

var readCmd = &cobra.Command{
	Use:   "read [paths...]",
	Short: "Enumerate structural handles or line anchors for one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRead,
}

func init() {
	readCmd.Flags().StringSliceVar(&readKind, "kind", nil, "only include nodes of these kinds")
	readCmd.Flags().StringSliceVar(&readExcludeKind, "exclude-kind", nil, "exclude nodes of these kinds")
	readCmd.Flags().StringVar(&readNameGlob, "name", "", "glob filter on node name (* and ?)")
	readCmd.Flags().StringVar(&readMode, "mode", "structural", "structural or line")
	readCmd.Flags().BoolVar(&readVerbose, "verbose-diagnostics", false, "include a diagnostic when recoverable parse errors omitted nodes")
	readCmd.Flags().BoolVar(&readJSON, "json", false, "force JSON output even in line mode")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	mode := parseindex.Structural
	if readMode == "line" {
		mode = parseindex.LineMode
	}
	filters := parseindex.Filters{
		Kind:        readKind,
		ExcludeKind: readExcludeKind,
		NameGlob:    readNameGlob,
		Mode:        mode,
		Verbose:     readVerbose,
	}

	handles, err := newEngine().Read(args, filters)
	if err != nil {
		return reportError(err)
	}

	if mode == parseindex.LineMode && !readJSON {
		printAnchorsHuman(handles.Anchors)
		return nil
	}
	return writeJSON(handles)
}

// printAnchorsHuman renders line mode's output as plain "LINE:HASH" text,
// the compact form allowed when --json is not set.
func printAnchorsHuman(anchors []schema.LineAnchor) {
	var b strings.Builder
	for _, a := range anchors {
		fmt.Fprintf(&b, "%d:%s\n", a.Line, a.Hash)
	}
	fmt.Print(b.String())
}
