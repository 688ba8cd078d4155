// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// ProviderName identifies a supported provider for key validation.
type ProviderName string

const (
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenAI     ProviderName = "openai"
	ProviderGoogle     ProviderName = "google"
	ProviderOpenRouter ProviderName = "openrouter"
)

type keyCheck struct {
	url     string
	headers map[string]string
}

func defaultKeyCheck(p ProviderName, key string) (keyCheck, bool) {
	switch p {
	case ProviderAnthropic:
		return keyCheck{
			url:     "https://api.anthropic.com/v1/models",
			headers: map[string]string{"x-api-key": key, "anthropic-version": "2023-06-01"},
		}, true
	case ProviderOpenAI:
		return keyCheck{
			url:     "https://api.openai.com/v1/models",
			headers: map[string]string{"Authorization": "Bearer " + key},
		}, true
	case ProviderGoogle:
		// The Generative Language API only accepts the key as a query parameter.
		return keyCheck{url: "https://generativelanguage.googleapis.com/v1/models?key=" + key}, true
	case ProviderOpenRouter:
		return keyCheck{
			url:     "https://openrouter.ai/api/v1/auth/key",
			headers: map[string]string{"Authorization": "Bearer " + key},
		}, true
	default:
		return keyCheck{}, false
	}
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the API key is accepted.
func ValidateKey(ctx context.Context, client *http.Client, p ProviderName, key string) error {
	return ValidateKeyWithURL(ctx, client, p, key, "")
}

// ValidateKeyWithURL is ValidateKey against an explicit endpoint; an empty
// url uses the provider default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, p ProviderName, key, url string) error {
	check, ok := defaultKeyCheck(p, key)
	if !ok {
		return vwerr.Errorf(vwerr.CodeProviderKeyInvalid, "unknown provider: %s", p)
	}
	if url != "" {
		check.url = url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, check.url, nil)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeProviderKeyCheckFailed, "building validation request",
			vwerr.FieldProvider(string(p)))
	}
	for k, v := range check.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeProviderKeyCheckFailed, "validating key", vwerr.FieldProvider(string(p)))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return vwerr.New(vwerr.CodeProviderKeyInvalid, "API key rejected",
			vwerr.FieldProvider(string(p)), vwerr.FieldUpstreamStatus(resp.StatusCode))
	case resp.StatusCode >= 400:
		return vwerr.New(vwerr.CodeProviderKeyCheckFailed, "key validation failed",
			vwerr.FieldProvider(string(p)), vwerr.FieldUpstreamStatus(resp.StatusCode))
	}
	return nil
}
