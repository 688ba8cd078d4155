// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package ingest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/ingest"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

const jsonCatalog = `[
  {
    "id": "XsXXDn",
    "title": "Creation by Silexars",
    "description": "first demoscene 1k",
    "code": "void mainImage(out vec4 c, in vec2 p){}",
    "tags": ["demoscene", "1k"],
    "author": "Danguafer",
    "views": 120000,
    "likes": 1800,
    "published": 1383770000
  },
  {"id": "ldX3Rr", "title": "Flat tags", "code": "void main(){}", "tags": "2d, , noise "}
]`

const yamlCatalog = `
- id: XsXXDn
  title: Creation by Silexars
  description: first demoscene 1k
  code: |
    void mainImage(out vec4 c, in vec2 p){}
  tags: [demoscene, 1k]
  author: Danguafer
  views: 120000
- id: ldX3Rr
  title: Flat tags
  code: void main(){}
  tags: 2d, noise
`

func TestDecodeJSON(t *testing.T) {
	examples, err := ingest.Decode(strings.NewReader(jsonCatalog), ingest.FormatJSON)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	first := examples[0]
	assert.Equal(t, "XsXXDn", first.ID)
	assert.Equal(t, "Creation by Silexars", first.Title)
	assert.Equal(t, "Danguafer", first.Author)
	assert.Equal(t, []string{"demoscene", "1k"}, first.Tags)
	assert.Equal(t, int64(120000), first.Views)
	assert.Equal(t, int64(1383770000), first.Published)

	assert.Equal(t, []string{"2d", "noise"}, examples[1].Tags)
	assert.Empty(t, examples[1].Author)
}

func TestDecodeYAML(t *testing.T) {
	examples, err := ingest.Decode(strings.NewReader(yamlCatalog), ingest.FormatYAML)
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, "void mainImage(out vec4 c, in vec2 p){}\n", examples[0].Code)
	assert.Equal(t, []string{"demoscene", "1k"}, examples[0].Tags)
	assert.Equal(t, []string{"2d", "noise"}, examples[1].Tags)
}

func TestDecodeEmptyYAML(t *testing.T) {
	examples, err := ingest.Decode(strings.NewReader(""), ingest.FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, examples)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := ingest.Decode(strings.NewReader(`{"id": "not a list"}`), ingest.FormatJSON)
	require.Error(t, err)
	assert.Equal(t, vwerr.CodeIngestCatalogInvalid, vwerr.CodeOf(err))
	assert.True(t, vwerr.IsInvalidInput(err))

	_, err = ingest.Decode(strings.NewReader(`[]`), ingest.Format("toml"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "catalog.json")
	yamlPath := filepath.Join(dir, "catalog.YML")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonCatalog), 0o600))
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlCatalog), 0o600))

	fromJSON, err := ingest.LoadFile(jsonPath)
	require.NoError(t, err)
	fromYAML, err := ingest.LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON[0].ID, fromYAML[0].ID)

	_, err = ingest.LoadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, vwerr.CodeIngestReadFailure, vwerr.CodeOf(err))

	_, err = ingest.LoadFile(filepath.Join(dir, "catalog.csv"))
	require.Error(t, err)
	assert.Equal(t, vwerr.CodeIngestCatalogInvalid, vwerr.CodeOf(err))
}
