// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package tokenizer counts and truncates text in the token vocabulary used
// by the embedding model.
package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// DefaultEncoding is the BPE vocabulary of the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// allSpecial lets literal special-token text such as "<|endoftext|>" in
// shader sources encode as ordinary input instead of panicking.
var allSpecial = []string{"all"}

// Counter reports the token length of text.
type Counter interface {
	CountTokens(text string) int
}

// Truncator counts tokens and cuts text down to a token budget.
type Truncator struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// Options selects the vocabulary. Model takes precedence over Encoding when
// both are set.
type Options struct {
	Encoding string
	Model    string
}

// NewTruncator resolves the vocabulary. A vocabulary that cannot be loaded is
// a startup error.
func NewTruncator(opts Options) (*Truncator, error) {
	if strings.TrimSpace(opts.Model) != "" {
		enc, err := tiktoken.EncodingForModel(opts.Model)
		if err != nil {
			return nil, vwerr.Wrap(err, vwerr.CodeTokenizerVocabularyUnavailable,
				"resolving vocabulary for model", vwerr.FieldModel(opts.Model))
		}
		return &Truncator{encoding: enc, name: opts.Model}, nil
	}

	name := opts.Encoding
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeTokenizerVocabularyUnavailable,
			"loading vocabulary", vwerr.Field("encoding", name))
	}
	return &Truncator{encoding: enc, name: name}, nil
}

// Name returns the encoding or model the vocabulary was resolved from.
func (t *Truncator) Name() string {
	return t.name
}

func (t *Truncator) encode(text string) []int {
	return t.encoding.Encode(text, allSpecial, nil)
}

// CountTokens returns the number of tokens text encodes to.
func (t *Truncator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encode(text))
}

// Truncate returns text unchanged when it fits in maxTokens. Otherwise it
// keeps the longest token prefix that decodes to valid UTF-8 and re-encodes
// to at most maxTokens tokens. The bool reports whether text was cut.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool) {
	tokens := t.encode(text)
	if len(tokens) <= maxTokens {
		return text, false
	}
	if maxTokens <= 0 {
		return "", true
	}

	for n := maxTokens; n > 0; n-- {
		prefix := t.encoding.Decode(tokens[:n])
		if !utf8.ValidString(prefix) {
			continue
		}
		if len(t.encode(prefix)) <= maxTokens {
			return prefix, true
		}
	}
	return "", true
}
