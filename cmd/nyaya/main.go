// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Command nyaya indexes the Constitution of India and answers questions
// about it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
