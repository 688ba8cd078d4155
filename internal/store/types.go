// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package store

import (
	"strings"
	"time"
)

// ShaderExample is one catalog shader held by the vector index. It is
// immutable once indexed; re-indexing the same ID replaces it entirely.
type ShaderExample struct {
	ID          string   `json:"id" yaml:"id"`
	Code        string   `json:"code" yaml:"code"`
	Title       string   `json:"title" yaml:"title"`
	Author      string   `json:"author,omitempty" yaml:"author"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	Views       int64    `json:"views,omitempty" yaml:"views"`
	Likes       int64    `json:"likes,omitempty" yaml:"likes"`
	// Published is a unix timestamp in seconds.
	Published int64 `json:"published,omitempty" yaml:"published"`
}

// TagList renders the tags the way the catalog stores them.
func (e ShaderExample) TagList() string {
	return strings.Join(e.Tags, ", ")
}

// EmbeddingText is the text embedded for an example: title, description and
// code on separate lines.
func (e ShaderExample) EmbeddingText() string {
	return e.Title + "\n" + e.Description + "\n" + e.Code
}

// RetrievedExample is an index hit. Rank is 1-based; Distance is the cosine
// distance to the query (lower is closer).
type RetrievedExample struct {
	Example  ShaderExample `json:"example"`
	Rank     int           `json:"rank"`
	Distance float64       `json:"distance"`
}

// RetrievalResult is ordered by ascending distance, ties broken by ID. It is
// never re-sorted downstream.
type RetrievalResult []RetrievedExample

// SavedShader is a user-saved generation in the shader gallery.
type SavedShader struct {
	ID          string    `json:"_id"`
	Prompt      string    `json:"prompt"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"timestamp"`
}

// ListOpts pages through saved shaders.
type ListOpts struct {
	Limit  int
	Offset int
}

// NormalizePrompt is the form prompts are saved and deduplicated in.
func NormalizePrompt(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}
