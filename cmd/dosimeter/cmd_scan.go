// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sievertlabs/dosimeter/internal/audit"
)

// runScan executes one audit and prints the result to stdout.
func runScan(cmd *cobra.Command, args []string) error {
	opts, err := auditOptions(cmd)
	if err != nil {
		return err
	}

	report, err := audit.New(logger).Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return printReport(report)
}

func printReport(report *audit.Report) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	for _, line := range report.Text {
		fmt.Println(line)
	}
	return nil
}
