// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package chat is the line-oriented question loop used when no terminal UI
// is available.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

var exitWords = []string{"quit", "exit", "bye", "q"}

// IsExit reports whether input ends the session.
func IsExit(input string) bool {
	return slices.Contains(exitWords, strings.ToLower(strings.TrimSpace(input)))
}

const (
	Prompt   = "Your question: "
	Thinking = "NyayaGPT is thinking..."
	Goodbye  = "Thank you for using NyayaGPT! Goodbye!"
	rule     = "------------------------------------------------------------"
)

// REPL reads one question per line and prints each answer.
type REPL struct {
	asker Asker
	in    io.Reader
	out   io.Writer

	// readerDone is closed when the input goroutine of the last Run exits.
	readerDone chan struct{}
}

func New(asker Asker, in io.Reader, out io.Writer) *REPL {
	return &REPL{asker: asker, in: in, out: out}
}

// Banner is printed once before the first prompt.
func Banner(out io.Writer) {
	_, _ = fmt.Fprintln(out, "NyayaGPT: questions about the Indian Constitution")
	_, _ = fmt.Fprintln(out, "Type 'quit', 'exit', 'bye' or 'q' to leave.")
}

// Run loops until an exit word, end of input or ctx cancellation. Errors
// from a single question are printed and the loop continues; Run itself
// only fails when reading input fails. The input goroutine stops once Run
// has returned and any read in progress completes.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	r.readerDone = make(chan struct{})
	go func(exited chan<- struct{}) {
		defer close(exited)
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}(r.readerDone)

	for {
		r.printf("\n%s", Prompt)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			r.printf("\n\nChat interrupted. Goodbye!\n")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			r.printf("\n%s\n", Goodbye)
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		question := strings.TrimSpace(line)
		if IsExit(question) {
			r.printf("\n%s\n", Goodbye)
			return nil
		}
		if question == "" {
			continue
		}

		r.printf("\n%s\n", Thinking)
		answer, err := r.asker.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				r.printf("\n\nChat interrupted. Goodbye!\n")
				return nil
			}
			r.printf("\nError: %v\n", err)
			r.printf("Please try again or type 'quit' to exit\n")
			continue
		}
		r.printf("\nAnswer:\n%s\n%s\n", answer, rule)
	}
}

func (r *REPL) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}
