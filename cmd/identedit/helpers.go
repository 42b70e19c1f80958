package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/identedit/identedit/internal/engine"
	"github.com/identedit/identedit/internal/grammarprovider"
	"github.com/identedit/identedit/internal/ierrors"
	"github.com/identedit/identedit/internal/logx"
)

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func newLogger() *logx.Logger {
	level := logx.Info
	if verboseFlag {
		level = logx.Debug
	}
	return logx.New(logx.Config{Format: logx.Human, Level: level})
}

func newEngine() *engine.Engine {
	return engine.New(grammarprovider.New(), newLogger())
}

// writeJSON marshals v with indentation to stdout, matching the JSON
// command output contract every command shares.
func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ierrors.Wrap(ierrors.Internal, "marshaling response", err)
	}
	fmt.Println(string(data))
	return nil
}

// reportError writes err to stderr as a single structured JSON object,
// then returns it unwrapped so main can derive the exit code.
func reportError(err error) error {
	if e, ok := ierrors.As(err); ok {
		data, marshalErr := json.Marshal(e)
		if marshalErr == nil {
			fmt.Fprintln(os.Stderr, string(data))
			return err
		}
	}
	fmt.Fprintln(os.Stderr, `{"kind":"internal_error","message":`+jsonQuote(err.Error())+`}`)
	return err
}

func jsonQuote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
