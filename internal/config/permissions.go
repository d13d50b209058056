// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning for each file that is group- or
// world-readable. Config and .env files carry API keys.
func WarnInsecurePermissions(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			slog.Debug("could not stat file for permission check", "path", path, "error", err)
			continue
		}

		const groupOrOtherRead fs.FileMode = 0o044
		if info.Mode().Perm()&groupOrOtherRead != 0 {
			slog.Warn("file holding credentials is readable by other users",
				"path", path,
				"mode", info.Mode(),
				"recommended", "0600",
			)
		}
	}
}
