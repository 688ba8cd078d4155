// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/visuworld/visuworld/internal/secrets"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func init() {
	keyring.MockInit()
}

func TestKeyringSetGetDelete(t *testing.T) {
	k := secrets.NewKeyring()
	svc := "test-set-get"

	require.NoError(t, k.Set(svc, "openai", "sk-123"))
	require.NoError(t, k.Set(svc, "google", "g-456"))
	require.NoError(t, k.Set(svc, "openai", "sk-789"))

	got, err := k.Get(svc, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-789", got)

	names, err := k.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "google"}, names)

	require.NoError(t, k.Delete(svc, "openai"))
	_, err = k.Get(svc, "openai")
	assert.True(t, vwerr.HasCode(err, vwerr.CodeSecretNotFound))

	names, err = k.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"google"}, names)
}

func TestKeyringMissingAndInvalid(t *testing.T) {
	k := secrets.NewKeyring()

	_, err := k.Get("no-such-service", "key")
	assert.True(t, vwerr.HasCode(err, vwerr.CodeSecretNotFound))

	err = k.Delete("no-such-service", "key")
	assert.True(t, vwerr.HasCode(err, vwerr.CodeSecretNotFound))

	err = k.Set("", "key", "v")
	assert.True(t, vwerr.HasCode(err, vwerr.CodeSecretURIInvalid))

	names, err := k.List("empty-service")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://visuworld/openai", "visuworld", "openai", false},
		{"slashes in key", "keyring://visuworld/providers/google", "visuworld", "providers/google", false},
		{"other scheme", "vault://secret/key", "", "", true},
		{"missing key", "keyring://visuworld/", "", "", true},
		{"missing service", "keyring:///key", "", "", true},
		{"no path", "keyring://visuworld", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, key, err := secrets.ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, vwerr.HasCode(err, vwerr.CodeSecretURIInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, svc)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestResolve(t *testing.T) {
	k := secrets.NewKeyring()
	require.NoError(t, k.Set("test-resolve", "gemini", "g-secret"))

	got, err := secrets.Resolve(k, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)

	got, err = secrets.Resolve(k, "keyring://test-resolve/gemini")
	require.NoError(t, err)
	assert.Equal(t, "g-secret", got)

	_, err = secrets.Resolve(k, "keyring://test-resolve/missing")
	require.Error(t, err)
	assert.ErrorContains(t, err, "keyring://test-resolve/missing")
}

func TestResolveViper(t *testing.T) {
	k := secrets.NewKeyring()
	require.NoError(t, k.Set("test-viper", "openai", "sk-resolved"))

	v := viper.New()
	v.Set("providers.openai.api_key", "keyring://test-viper/openai")
	v.Set("providers.google.api_key", "keyring://test-viper/absent")
	v.Set("providers.anthropic.api_key", "literal")

	secrets.ResolveViper(v, k)

	assert.Equal(t, "sk-resolved", v.GetString("providers.openai.api_key"))
	assert.Equal(t, "keyring://test-viper/absent", v.GetString("providers.google.api_key"))
	assert.Equal(t, "literal", v.GetString("providers.anthropic.api_key"))
}
