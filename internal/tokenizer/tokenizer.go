// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package tokenizer measures text in BPE tokens so chunk budgets match what
// model context windows count.
package tokenizer

import (
	"sync"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

var loaderOnce sync.Once

// useOfflineRanks makes tiktoken read its BPE ranks from the embedded
// loader instead of downloading them.
func useOfflineRanks() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
}

// BPE is a byte-pair-encoding tokenizer.
type BPE struct {
	name string
	enc  *tiktoken.Tiktoken
}

// New loads the named encoding, e.g. "cl100k_base".
func New(encoding string) (*BPE, error) {
	useOfflineRanks()

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, nyayaerr.Wrapf(err, nyayaerr.CodeChunkerTokenizerFailure, "loading tokenizer encoding %q", encoding)
	}
	return &BPE{name: encoding, enc: enc}, nil
}

func (b *BPE) Name() string { return b.name }

// Encode returns the token ids of text. Special-token text is encoded as
// ordinary bytes.
func (b *BPE) Encode(text string) []int {
	return b.enc.Encode(text, nil, nil)
}

func (b *BPE) Decode(tokens []int) string {
	return b.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func (b *BPE) Count(text string) int {
	return len(b.Encode(text))
}
