// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package secrets keeps API keys out of config files by storing them in the
// OS keyring and resolving keyring:// references after config load.
package secrets

import "sort"

// Service is the keyring service every Nyaya credential lives under.
const Service = "nyaya"

// Store provides secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value. A missing key reports
	// CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret. A missing key reports CodeSecretNotFound.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

// Known maps the secret names `nyaya secret set` accepts to the config keys
// that read them.
var Known = map[string]string{
	"openai-api-key":    "embedding.api_key",
	"google-api-key":    "generation.api_key",
	"chroma-api-key":    "store.chroma.api_key",
	"pinecone-api-key":  "store.pinecone.api_key",
	"anthropic-api-key": "generation.api_key",
}

// KnownNames returns the keys of Known in sorted order.
func KnownNames() []string {
	names := make([]string, 0, len(Known))
	for name := range Known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// URI returns the keyring reference for a secret name under Service.
func URI(name string) string {
	return keyringScheme + Service + "/" + name
}
