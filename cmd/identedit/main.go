package main

import (
	"os"

	"github.com/identedit/identedit/internal/logx"
)

func main() {
	logger := logx.New(logx.Config{
		Format: logx.Human,
		Level:  logx.Info,
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Err("command execution failed", map[string]any{
			"error": err.Error(),
		})
		os.Exit(exitCodeFor(err))
	}
}
