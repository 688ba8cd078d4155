// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys stored beside each embedding. The code is stored as the
// entry's document, not in the metadata.
const (
	MetaTitle       = "title"
	MetaAuthor      = "author"
	MetaDescription = "description"
	MetaTags        = "tags"
	MetaViews       = "views"
	MetaLikes       = "likes"
	MetaPublished   = "published"
)

// EncodeMetadata flattens the non-code fields of an example into JSON.
func EncodeMetadata(e ShaderExample) ([]byte, error) {
	meta := map[string]any{
		MetaTitle:       e.Title,
		MetaAuthor:      e.Author,
		MetaDescription: e.Description,
		MetaTags:        e.TagList(),
		MetaViews:       e.Views,
		MetaLikes:       e.Likes,
		MetaPublished:   e.Published,
	}
	return json.Marshal(meta)
}

// DecodeExample rebuilds an example from its document and raw JSON metadata.
// Title and code are required; a missing one yields ErrMalformed. Optional
// fields decode to zero values.
func DecodeExample(id, document string, rawMeta []byte) (ShaderExample, error) {
	meta := map[string]any{}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return ShaderExample{}, fmt.Errorf("example %s: decoding metadata: %w", id, ErrMalformed)
		}
	}

	e := ShaderExample{
		ID:          id,
		Code:        document,
		Title:       metaString(meta, MetaTitle),
		Author:      metaString(meta, MetaAuthor),
		Description: metaString(meta, MetaDescription),
		Tags:        metaTags(meta[MetaTags]),
		Views:       metaInt(meta, MetaViews),
		Likes:       metaInt(meta, MetaLikes),
		Published:   metaInt(meta, MetaPublished),
	}

	if strings.TrimSpace(e.Code) == "" {
		return ShaderExample{}, fmt.Errorf("example %s: missing code: %w", id, ErrMalformed)
	}
	if e.Title == "" {
		return ShaderExample{}, fmt.Errorf("example %s: missing title: %w", id, ErrMalformed)
	}
	return e, nil
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func metaInt(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// metaTags accepts the comma-joined string form as well as a JSON list.
func metaTags(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	var tags []string
	for _, tag := range raw {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
