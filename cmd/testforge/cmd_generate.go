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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/testforge/pkg/eventstream"
)

var (
	modelFlag     string
	languageFlag  string
	frameworkFlag string
	outDirFlag    string
)

type uploadedFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type generateRequest struct {
	InputCode        string         `json:"inputCode,omitempty"`
	UploadedFiles    []uploadedFile `json:"uploadedFiles,omitempty"`
	SelectedLanguage string         `json:"selectedLanguage"`
	TestFramework    string         `json:"testFramework"`
	AIModel          string         `json:"aiModel"`
}

var generateCmd = &cobra.Command{
	Use:   "generate [files...]",
	Short: "Generate unit tests for one or more source files",
	Long: `Reads the given source files, streams them to the testforge server,
and writes the generated test files into the output directory.

With no file arguments, source code is read from stdin.`,
	RunE: runGenerateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&modelFlag, "model", "m", "gpt-4o", "model identifier (see 'testforge models')")
	generateCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "source language (e.g. javascript, python, go)")
	generateCmd.Flags().StringVarP(&frameworkFlag, "framework", "f", "", "test framework (e.g. jest, pytest, gotest)")
	generateCmd.Flags().StringVarP(&outDirFlag, "out", "o", ".", "directory to write generated test files into")
	_ = generateCmd.MarkFlagRequired("language")
	_ = generateCmd.MarkFlagRequired("framework")

	rootCmd.AddCommand(generateCmd)
}

func runGenerateCommand(cmd *cobra.Command, args []string) error {
	req := generateRequest{
		SelectedLanguage: languageFlag,
		TestFramework:    frameworkFlag,
		AIModel:          modelFlag,
	}

	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		req.InputCode = string(data)
	} else {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			req.UploadedFiles = append(req.UploadedFiles, uploadedFile{
				Name:    filepath.Base(path),
				Content: string(data),
			})
		}
	}

	result, err := streamGenerate(req)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDirFlag, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, test := range result.Tests {
		outPath := filepath.Join(outDirFlag, test.FileName)
		if err := os.WriteFile(outPath, []byte(test.Code), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Printf("Wrote %s\n", outPath)
	}
	fmt.Printf("\n%s\n", result.Message)
	return nil
}

// streamGenerate posts the request and consumes the NDJSON event stream,
// rendering progress to stderr as it arrives.
func streamGenerate(req generateRequest) (*eventstream.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := getServerBaseURL() + "/v1/generate/stream"
	slog.Debug("posting generation request",
		"url", url,
		"model", req.AIModel,
		"language", req.SelectedLanguage,
		"framework", req.TestFramework,
		"files", len(req.UploadedFiles))
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// No overall client timeout: the stream can legitimately run for
	// minutes. The server enforces its own generation budget.
	client := &http.Client{Timeout: 0}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server rejected request: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	start := time.Now()
	processor := eventstream.NewProcessor(func(message string, percent int) {
		fmt.Fprintf(os.Stderr, "\r[%3d%%] %s (%ds)", percent, message, int(time.Since(start).Seconds()))
	})
	result, err := processor.Process(resp.Body)
	fmt.Fprintln(os.Stderr)
	return result, err
}
