// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/testforge/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "testforge",
	Short: "Generate unit tests for your code with AI",
	Long: `testforge sends source code to a testforge server and writes the
generated unit test files to disk.

The server address defaults to http://localhost:12230 and can be
overridden with --server or the TESTFORGE_SERVER environment variable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cliLogger != nil {
			cliLogger.Close()
		}
	},
}

var (
	serverURL string
	verbose   bool
	cliLogger *logging.Logger
)

// setupLogging configures the process-wide logger. Diagnostics go to
// stderr only with --verbose; file logging is enabled by setting
// TESTFORGE_LOG_DIR. Level defaults to warn so normal CLI output stays
// clean, or debug under --verbose.
func setupLogging() error {
	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	if env := os.Getenv("TESTFORGE_LOG_LEVEL"); env != "" {
		level = logging.ParseLevel(env)
	}

	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  os.Getenv("TESTFORGE_LOG_DIR"),
		Service: "cli",
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logger.SetAsDefault()
	cliLogger = logger
	return nil
}

// getServerBaseURL resolves the server address from the --server flag or
// the TESTFORGE_SERVER environment variable.
func getServerBaseURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("TESTFORGE_SERVER"); env != "" {
		return env
	}
	return "http://localhost:12230"
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "testforge server base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging to stderr")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
