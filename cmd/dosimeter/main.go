// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/sievertlabs/dosimeter/internal/cargo"
)

func main() {
	// During an instrumented build cargo re-invokes this binary as
	// RUSTC_WRAPPER with the compiler argv. Hand off before cobra sees it.
	if cargo.IsWrapperInvocation(os.Args) {
		os.Exit(cargo.RunWrapper(os.Args))
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
