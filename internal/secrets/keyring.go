// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexSuffix names the entry holding a JSON list of stored keys;
// go-keyring cannot enumerate on its own.
const indexSuffix = "::index"

// KeyringStore implements Store on the OS keyring (Keychain, Secret Service
// or Credential Manager).
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkArgs(op, service, key string) error {
	if service == "" {
		return nyayaerr.Errorf(nyayaerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return nyayaerr.Errorf(nyayaerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkArgs("store", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return nyayaerr.Wrapf(err, nyayaerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	keys, err := s.List(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.writeIndex(service, append(keys, key))
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkArgs("retrieve", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", nyayaerr.Errorf(nyayaerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return "", nyayaerr.Wrapf(err, nyayaerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkArgs("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return nyayaerr.Errorf(nyayaerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	case err != nil:
		return nyayaerr.Wrapf(err, nyayaerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	keys, err := s.List(service)
	if err != nil {
		return err
	}
	return s.writeIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+indexSuffix)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, nyayaerr.Wrapf(err, nyayaerr.CodeSecretListFailure, "loading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, nyayaerr.Wrapf(err, nyayaerr.CodeSecretListFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) writeIndex(service string, keys []string) error {
	indexKey := service + indexSuffix

	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to remove empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return nyayaerr.Wrapf(err, nyayaerr.CodeSecretListFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return nyayaerr.Wrapf(err, nyayaerr.CodeSecretListFailure, "saving key index for %s", service)
	}
	return nil
}
