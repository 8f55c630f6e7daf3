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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the server supports",
	RunE:  runModelsCommand,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModelsCommand(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(getServerBaseURL() + "/v1/models")
	if err != nil {
		return fmt.Errorf("contact server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var payload struct {
		Models []struct {
			ID           string `json:"id"`
			Provider     string `json:"provider"`
			MaxTokens    int    `json:"maxTokens"`
			ContextLimit int    `json:"contextLimit"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tMAX TOKENS\tCONTEXT")
	for _, m := range payload.Models {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", m.ID, m.Provider, m.MaxTokens, m.ContextLimit)
	}
	return w.Flush()
}
