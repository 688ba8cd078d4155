// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Format is a catalog file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", vwerr.New(vwerr.CodeIngestCatalogInvalid,
			"unsupported catalog extension (want .json, .yaml or .yml)", vwerr.Field("path", path))
	}
}

// tagList accepts tags as a list or as one comma-separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = splitTags(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

func (t *tagList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = splitTags(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*t = list
	return nil
}

func splitTags(s string) []string {
	var out []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// record is one catalog entry as scraped from the shader site.
type record struct {
	ID          string  `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description" yaml:"description"`
	Code        string  `json:"code" yaml:"code"`
	Tags        tagList `json:"tags" yaml:"tags"`
	Author      string  `json:"author" yaml:"author"`
	Views       int64   `json:"views" yaml:"views"`
	Likes       int64   `json:"likes" yaml:"likes"`
	Published   int64   `json:"published" yaml:"published"`
}

func (r record) example() store.ShaderExample {
	return store.ShaderExample{
		ID:          strings.TrimSpace(r.ID),
		Code:        r.Code,
		Title:       r.Title,
		Author:      r.Author,
		Description: r.Description,
		Tags:        []string(r.Tags),
		Views:       r.Views,
		Likes:       r.Likes,
		Published:   r.Published,
	}
}

// Decode reads a catalog: a list of shader records.
func Decode(r io.Reader, format Format) ([]store.ShaderExample, error) {
	var (
		records []record
		err     error
	)
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&records)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&records)
		if err == io.EOF {
			err = nil
		}
	default:
		return nil, vwerr.Errorf(vwerr.CodeIngestCatalogInvalid, "unknown catalog format %q", format)
	}
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIngestCatalogInvalid, "decoding catalog",
			vwerr.Field("format", string(format)))
	}

	out := make([]store.ShaderExample, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.example())
	}
	return out, nil
}

// LoadFile reads the catalog at path, choosing the format by extension.
func LoadFile(path string) ([]store.ShaderExample, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIngestReadFailure, "opening catalog", vwerr.Field("path", path))
	}
	defer func() { _ = f.Close() }()

	examples, err := Decode(f, format)
	if err != nil {
		return nil, vwerr.With(err, vwerr.Field("path", path))
	}
	return examples, nil
}
