// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package prompt renders the generation prompt from the user request and the
// retrieved examples.
package prompt

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/visuworld/visuworld/internal/store"
	"github.com/visuworld/visuworld/internal/tokenizer"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// DefaultSnippetChars is how much of each example's code is quoted. It is a
// character count, not a token budget.
const DefaultSnippetChars = 300

var (
	//go:embed templates/shader.tmpl
	shaderTemplate string

	// Library is the SDF and blending reference appended to every prompt.
	//go:embed templates/sdf.glsl
	Library string

	tmpl = template.Must(template.New("shader").Parse(shaderTemplate))
)

// Context is the per-request input to the composer.
type Context struct {
	UserPrompt string
	Retrieved  store.RetrievalResult
	// ExistingCode is set for modify requests.
	ExistingCode *string
}

// Composed is a bounded prompt together with what it kept.
type Composed struct {
	Text     string
	Examples int
	Dropped  int
	Tokens   int
}

// Options configures a Composer. A nil Counter disables the token cap.
type Options struct {
	SnippetChars int
	// MaxTokens caps the whole prompt; 0 disables the cap.
	MaxTokens int
	Counter   tokenizer.Counter
}

// Composer renders prompts. It is safe for concurrent use.
type Composer struct {
	snippetChars int
	maxTokens    int
	counter      tokenizer.Counter
}

// New returns a Composer, applying DefaultSnippetChars when unset.
func New(opts Options) *Composer {
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = DefaultSnippetChars
	}
	return &Composer{snippetChars: opts.SnippetChars, maxTokens: opts.MaxTokens, counter: opts.Counter}
}

// Compose renders pc with the default snippet length.
func Compose(pc Context) string {
	return New(Options{}).Compose(pc)
}

type exampleView struct {
	Rank        int
	Title       string
	Author      string
	Description string
	Tags        string
	Snippet     string
}

type view struct {
	UserPrompt      string
	HasExistingCode bool
	ExistingCode    string
	Examples        []exampleView
	Library         string
}

// Compose renders pc. Examples appear in retrieval order.
func (c *Composer) Compose(pc Context) string {
	v := view{
		UserPrompt: pc.UserPrompt,
		Library:    strings.TrimSuffix(Library, "\n"),
		Examples:   make([]exampleView, 0, len(pc.Retrieved)),
	}
	if pc.ExistingCode != nil {
		v.HasExistingCode = true
		v.ExistingCode = *pc.ExistingCode
	}
	for _, r := range pc.Retrieved {
		v.Examples = append(v.Examples, exampleView{
			Rank:        r.Rank,
			Title:       r.Example.Title,
			Author:      r.Example.Author,
			Description: r.Example.Description,
			Tags:        r.Example.TagList(),
			Snippet:     Snippet(r.Example.Code, c.snippetChars),
		})
	}

	var sb strings.Builder
	// The template is static and references only view fields.
	if err := tmpl.Execute(&sb, v); err != nil {
		panic("prompt: executing shader template: " + err.Error())
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ComposeBounded renders pc within the token ceiling, dropping the least
// similar examples first. A prompt that exceeds the ceiling with no examples
// is rejected; the user prompt and existing code are never cut.
func (c *Composer) ComposeBounded(pc Context) (Composed, error) {
	text := c.Compose(pc)
	if c.maxTokens <= 0 || c.counter == nil {
		return Composed{Text: text, Examples: len(pc.Retrieved)}, nil
	}

	total := len(pc.Retrieved)
	for {
		tokens := c.counter.CountTokens(text)
		if tokens <= c.maxTokens {
			return Composed{
				Text:     text,
				Examples: len(pc.Retrieved),
				Dropped:  total - len(pc.Retrieved),
				Tokens:   tokens,
			}, nil
		}
		if len(pc.Retrieved) == 0 {
			return Composed{}, vwerr.New(vwerr.CodePromptComposeTooLarge,
				"prompt exceeds the token ceiling without any examples",
				vwerr.FieldStage(vwerr.StageCompose),
				vwerr.Field("tokens", tokens),
				vwerr.Field("max_tokens", c.maxTokens),
				vwerr.FieldRetryable(false),
			)
		}
		pc.Retrieved = pc.Retrieved[:len(pc.Retrieved)-1]
		text = c.Compose(pc)
	}
}

// Snippet returns the first n characters (runes) of code.
func Snippet(code string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range code {
		if count == n {
			return code[:i]
		}
		count++
	}
	return code
}
