// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

//go:embed nyaya.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/nyaya/nyaya.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nyayaerr.Errorf(nyayaerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "nyaya", "nyaya.yaml"), nil
}

// WriteConfig writes data to path with owner-only permissions, creating the
// parent directory.
func WriteConfig(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nyayaerr.Wrapf(err, nyayaerr.CodeConfigBootstrapWriteFailure, "creating %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nyayaerr.Wrapf(err, nyayaerr.CodeConfigBootstrapWriteFailure, "writing %s", path)
	}
	return nil
}

// BootstrapConfig writes the commented default config to the default path if
// no file exists there yet. It returns the path written, or "" when nothing
// was written. Failures are logged and skipped.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	if err := WriteConfig(cfgPath, DefaultConfigYAML); err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
