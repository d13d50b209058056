// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package chat

// ReaderDone exposes the channel closed when the input goroutine of the last
// Run exits.
func (r *REPL) ReaderDone() <-chan struct{} {
	return r.readerDone
}
