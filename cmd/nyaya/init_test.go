// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func useConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nyaya", "nyaya.yaml")
	orig := configPathForWrite
	configPathForWrite = func() (string, error) { return path, nil }
	t.Cleanup(func() { configPathForWrite = orig })
	return path
}

func TestGenerateConfigYAML(t *testing.T) {
	tests := []struct {
		provider     string
		wantModel    string
		wantGenKey   string
		wantEmbedKey string
	}{
		{"google", "gemini-2.5-flash", "keyring://nyaya/google-api-key", "keyring://nyaya/openai-api-key"},
		{"openai", "gpt-4o-mini", "keyring://nyaya/openai-api-key", "keyring://nyaya/openai-api-key"},
		{"anthropic", "claude-sonnet-4-5", "keyring://nyaya/anthropic-api-key", "keyring://nyaya/openai-api-key"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			body, err := GenerateConfigYAML(initResult{Provider: tt.provider, APIKey: "secret-value"})
			require.NoError(t, err)
			assert.NotContains(t, body, "secret-value")

			var got map[string]map[string]string
			require.NoError(t, yaml.Unmarshal([]byte(body), &got))
			assert.Equal(t, tt.provider, got["generation"]["provider"])
			assert.Equal(t, tt.wantModel, got["generation"]["model"])
			assert.Equal(t, tt.wantGenKey, got["generation"]["api_key"])
			assert.Equal(t, "openai", got["embedding"]["provider"])
			assert.Equal(t, tt.wantEmbedKey, got["embedding"]["api_key"])
			assert.Equal(t, "sqlite", got["store"]["backend"])
		})
	}
}

func TestStoreSecretAndWriteConfig(t *testing.T) {
	t.Run("stores both keys and writes config", func(t *testing.T) {
		path := useConfigPath(t)
		store := newMockSecretStore()

		got, err := storeSecretAndWriteConfig(initResult{
			Provider:     "google",
			APIKey:       "AIza-test",
			EmbeddingKey: "sk-test",
		}, store, false)
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Equal(t, "AIza-test", store.data["google-api-key"])
		assert.Equal(t, "sk-test", store.data["openai-api-key"])

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("openai stores one key", func(t *testing.T) {
		useConfigPath(t)
		store := newMockSecretStore()

		_, err := storeSecretAndWriteConfig(initResult{Provider: "openai", APIKey: "sk-test"}, store, false)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"openai-api-key": "sk-test"}, store.data)
	})

	t.Run("existing config needs force", func(t *testing.T) {
		path := useConfigPath(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
		store := newMockSecretStore()

		_, err := storeSecretAndWriteConfig(initResult{Provider: "openai", APIKey: "sk-test"}, store, false)
		require.Error(t, err)
		assert.True(t, nyayaerr.HasCode(err, nyayaerr.CodeCLISetupFailure))
		assert.Empty(t, store.data)

		_, err = storeSecretAndWriteConfig(initResult{Provider: "openai", APIKey: "sk-test"}, store, true)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "keyring://nyaya/openai-api-key")
	})
}

func TestInitModel_Steps(t *testing.T) {
	m := newInitModel(newMockSecretStore())

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(initModel)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "openai", m.result.Provider)
	assert.Equal(t, 1, m.totalSteps())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(initModel)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "API key must not be empty", m.validationErr)

	next, _ = m.Update(validationErrorMsg{step: stepValidateKey, err: nyayaerr.New(nyayaerr.CodeProviderKeyInvalid, "rejected")})
	m = next.(initModel)
	assert.Equal(t, stepAPIKey, m.step)
	assert.Contains(t, m.View(), "rejected")
}

func TestInitModel_SecondStepForNonOpenAI(t *testing.T) {
	m := newInitModel(newMockSecretStore())
	m.result.Provider = "google"
	m.step = stepValidateKey

	next, _ := m.Update(validationSuccessMsg{step: stepValidateKey})
	m = next.(initModel)
	assert.Equal(t, stepEmbeddingKey, m.step)
	assert.Equal(t, 2, m.totalSteps())
	assert.Contains(t, m.View(), "Step 2/2")
}

func TestInitModel_ConfigWritten(t *testing.T) {
	m := newInitModel(newMockSecretStore())

	next, cmd := m.Update(configWrittenMsg{path: "/tmp/nyaya.yaml"})
	m = next.(initModel)
	assert.Equal(t, stepDone, m.step)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "/tmp/nyaya.yaml")
}
