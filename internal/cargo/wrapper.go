// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cargo

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WrapperSocketEnv names the environment variable carrying the collector
// socket path. Its presence switches the dosimeter binary into wrapper
// mode.
const WrapperSocketEnv = "DOSIMETER_WRAPPER_SOCKET"

// IsWrapperInvocation reports whether argv looks like cargo invoking this
// binary as RUSTC_WRAPPER: the collector socket is exported and a rustc
// binary follows argv[0]. Checking the compiler name keeps a leaked
// socket variable from hijacking a normal CLI invocation.
func IsWrapperInvocation(args []string) bool {
	if os.Getenv(WrapperSocketEnv) == "" || len(args) < 2 {
		return false
	}
	return strings.HasPrefix(filepath.Base(args[1]), "rustc")
}

// RunWrapper executes one wrapped rustc invocation: report the call to
// the collector, then hand off to the real compiler with inherited stdio.
// Returns the process exit code.
//
// A report failure fails the compile on purpose. Proceeding would give
// the audit an incomplete capture, and a failed invocation is what makes
// the driver abort the whole run instead.
func RunWrapper(args []string) int {
	socketPath := os.Getenv(WrapperSocketEnv)
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dosimeter wrapper: getwd: %v\n", err)
		return 1
	}

	if err := sendReport(socketPath, wrapperReport{Cwd: cwd, Args: args[1:]}); err != nil {
		fmt.Fprintf(os.Stderr, "dosimeter wrapper: report: %v\n", err)
		return 1
	}

	cmd := exec.Command(args[1], args[2:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// The wrapper variables stay in the environment on purpose: rustc
	// re-invoking itself must keep reporting.
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "dosimeter wrapper: exec %s: %v\n", args[1], err)
		return 1
	}
	return 0
}

func sendReport(socketPath string, report wrapperReport) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return json.NewEncoder(conn).Encode(report)
}
