// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package secrets_test

import (
	"testing"

	"github.com/nyaya-dev/nyaya/internal/secrets"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyringURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://nyaya/google-api-key", "nyaya", "google-api-key", false},
		{"slashes in key", "keyring://nyaya/path/to/key", "nyaya", "path/to/key", false},
		{"other scheme", "vault://secret/key", "", "", true},
		{"missing key", "keyring://nyaya/", "", "", true},
		{"missing service", "keyring:///key", "", "", true},
		{"no path", "keyring://nyaya", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, key, err := secrets.ParseKeyringURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, nyayaerr.HasCode(err, nyayaerr.CodeSecretInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantService, svc)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestResolveKeyringURI(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("nyaya", "resolve-key", "resolved-secret"))

	val, err := secrets.ResolveKeyringURI(ks, "keyring://nyaya/resolve-key")
	require.NoError(t, err)
	assert.Equal(t, "resolved-secret", val)

	val, err = secrets.ResolveKeyringURI(ks, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", val)

	_, err = secrets.ResolveKeyringURI(ks, "keyring://nyaya/absent")
	require.Error(t, err)
	assert.True(t, nyayaerr.HasCode(err, nyayaerr.CodeSecretResolveFailure))
}

func TestResolveViperSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("nyaya", "pinecone-api-key", "pc-secret"))

	v := viper.New()
	v.Set("store.pinecone.api_key", "keyring://nyaya/pinecone-api-key")
	v.Set("store.chroma.api_key", "keyring://nyaya/never-stored")
	v.Set("generation.model", "gemini-2.5-flash")

	unresolved := secrets.ResolveViperSecrets(v, ks)

	assert.Equal(t, "pc-secret", v.GetString("store.pinecone.api_key"))
	assert.Equal(t, "", v.GetString("store.chroma.api_key"))
	assert.Equal(t, "gemini-2.5-flash", v.GetString("generation.model"))
	assert.Equal(t, []string{"store.chroma.api_key"}, unresolved)
}
