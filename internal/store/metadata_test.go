// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package store_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/store"
)

func TestEncodeDecodeExample(t *testing.T) {
	in := store.ShaderExample{
		ID:          "XsXXDn",
		Code:        "void main(){ gl_FragColor = vec4(1.0); }",
		Title:       "Creation",
		Author:      "Danilo",
		Description: "A tiny intro",
		Tags:        []string{"2d", "plasma"},
		Views:       1200,
		Likes:       40,
		Published:   1372000000,
	}

	raw, err := store.EncodeMetadata(in)
	require.NoError(t, err)

	out, err := store.DecodeExample(in.ID, in.Code, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeExampleOptionalFieldsDefault(t *testing.T) {
	out, err := store.DecodeExample("id1", "void main(){}", []byte(`{"title":"Only a title"}`))
	require.NoError(t, err)
	assert.Equal(t, "Only a title", out.Title)
	assert.Empty(t, out.Author)
	assert.Empty(t, out.Description)
	assert.Empty(t, out.Tags)
}

func TestDecodeExampleTagForms(t *testing.T) {
	out, err := store.DecodeExample("id1", "code", []byte(`{"title":"t","tags":["a"," b ",""]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Tags)

	out, err = store.DecodeExample("id1", "code", []byte(`{"title":"t","tags":"raymarching, sdf,"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"raymarching", "sdf"}, out.Tags)
	assert.Equal(t, "raymarching, sdf", out.TagList())
}

func TestDecodeExampleMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		meta string
	}{
		{name: "missing title", doc: "void main(){}", meta: `{"author":"x"}`},
		{name: "missing code", doc: "  ", meta: `{"title":"t"}`},
		{name: "broken json", doc: "void main(){}", meta: `{"title":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.DecodeExample("bad", tt.doc, []byte(tt.meta))
			require.Error(t, err)
			assert.True(t, errors.Is(err, store.ErrMalformed))
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	e := store.ShaderExample{Title: "Sea", Description: "waves", Code: "void main(){}"}
	assert.Equal(t, "Sea\nwaves\nvoid main(){}", e.EmbeddingText())
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, "a glowing cube", store.NormalizePrompt("  A Glowing CUBE \n"))
}
