// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package secrets keeps provider API keys in the OS keyring and resolves
// keyring://service/key references found in configuration.
package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Service is the keyring service visuworld stores its keys under.
const Service = "visuworld"

const (
	uriScheme = "keyring://"
	indexKey  = "::index"
)

// Store reads and writes named secrets.
type Store interface {
	Set(service, key, value string) error
	// Get returns an error carrying CodeSecretNotFound for a missing key.
	Get(service, key string) (string, error)
	Delete(service, key string) error
	List(service string) ([]string, error)
}

// Keyring implements Store on the OS keyring (Keychain, secret-service,
// Credential Manager). go-keyring cannot enumerate, so the key names of a
// service are mirrored into a JSON list stored under indexKey.
type Keyring struct{}

func NewKeyring() *Keyring {
	return &Keyring{}
}

func checkNames(service, key string) error {
	if service == "" || key == "" {
		return vwerr.New(vwerr.CodeSecretURIInvalid, "service and key must not be empty",
			vwerr.Field("service", service), vwerr.Field("key", key))
	}
	return nil
}

func (k *Keyring) Set(service, key, value string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "storing %s/%s", service, key)
	}

	names, err := k.List(service)
	if err != nil {
		return err
	}
	if slices.Contains(names, key) {
		return nil
	}
	return k.writeIndex(service, append(names, key))
}

func (k *Keyring) Get(service, key string) (string, error) {
	if err := checkNames(service, key); err != nil {
		return "", err
	}
	value, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", vwerr.Errorf(vwerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "reading %s/%s", service, key)
	}
	return value, nil
}

func (k *Keyring) Delete(service, key string) error {
	if err := checkNames(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return vwerr.Errorf(vwerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "deleting %s/%s", service, key)
	}

	names, err := k.List(service)
	if err != nil {
		return err
	}
	return k.writeIndex(service, slices.DeleteFunc(names, func(n string) bool { return n == key }))
}

func (k *Keyring) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "reading key index of %s", service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "decoding key index of %s", service)
	}
	return names, nil
}

func (k *Keyring) writeIndex(service string, names []string) error {
	if len(names) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "encoding key index of %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return vwerr.Wrapf(err, vwerr.CodeSecretKeyringFailure, "writing key index of %s", service)
	}
	return nil
}

// IsURI reports whether value is a keyring:// reference.
func IsURI(value string) bool {
	return strings.HasPrefix(value, uriScheme)
}

// ParseURI splits keyring://service/key. The key may itself contain slashes.
func ParseURI(uri string) (service, key string, err error) {
	if !IsURI(uri) {
		return "", "", vwerr.Errorf(vwerr.CodeSecretURIInvalid, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, uriScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", vwerr.Errorf(vwerr.CodeSecretURIInvalid,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns value unchanged unless it is a keyring URI, in which case
// the referenced secret is returned.
func Resolve(store Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}
	service, key, err := ParseURI(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", vwerr.Wrapf(err, vwerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring URI value in v with its secret. A
// reference that cannot be resolved is logged and left in place so the
// component using it fails with a clear credential error.
func ResolveViper(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if !IsURI(value) {
			continue
		}
		secret, err := Resolve(store, value)
		if err != nil {
			slog.Warn("keyring reference unresolved", "config_key", key, "error", err)
			continue
		}
		v.Set(key, secret)
	}
}
