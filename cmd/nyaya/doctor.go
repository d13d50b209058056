// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/nyaya-dev/nyaya/internal/embedding/cache"
	"github.com/nyaya-dev/nyaya/internal/provider"
)

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, the source document, credentials, the vector store, the generative model and disk space.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDoctor(cmd)
		},
	}
	cmd.Flags().Duration("timeout", 15*time.Second, "timeout for each remote check")
	return cmd
}

func (a *app) runDoctor(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	timeout, _ := cmd.Flags().GetDuration("timeout")

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Config", a.checkConfig},
		{"Document", a.checkDocument},
		{"Credentials", a.checkCredentials},
		{"Embedding Cache", a.checkCache},
		{"Vector Store", func() string { return a.checkStore(cmd.Context(), timeout) }},
		{"Generation", func() string { return a.checkGeneration(cmd.Context(), timeout) }},
		{"Disk Space", func() string { return checkDiskSpace(a.cfg.DataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("nyaya %s (%s/%s, %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (a *app) checkConfig() string {
	if cfgFile := a.v.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func (a *app) checkDocument() string {
	info, err := os.Stat(a.cfg.Document.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("missing %s (set document.path or pass a path to ingest)", a.cfg.Document.Path)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s (%s)", a.cfg.Document.Path, formatBytes(uint64(info.Size())))
}

func (a *app) checkCredentials() string {
	var missing []string
	for _, err := range []error{
		a.cfg.RequireEmbeddingCredentials(),
		a.cfg.RequireStoreCredentials(),
		a.cfg.RequireGenerationCredentials(),
	} {
		if err != nil {
			missing = append(missing, err.Error())
		}
	}
	if len(missing) == 0 {
		return "ok"
	}
	return strings.Join(missing, "\n"+strings.Repeat(" ", 21))
}

func (a *app) checkStore(ctx context.Context, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := a.storeStack(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = s.Close() }()

	info, err := s.index.Info(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	line := fmt.Sprintf("%s %q: %d records, dimension %d", info.Backend, info.Name, info.Count, info.Dimension)

	// Only the local backend can enumerate its collections.
	if lister, ok := s.index.Store().(collectionLister); ok {
		all, err := lister.Collections(ctx)
		if err != nil {
			return line + fmt.Sprintf("; collections: error: %s", err)
		}
		line += "; collections: " + describeCollections(all)
	}
	return line
}

type collectionLister interface {
	Collections(ctx context.Context) (map[string]int, error)
}

func describeCollections(all map[string]int) string {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%d)", name, all[name])
	}
	return strings.Join(parts, ", ")
}

func (a *app) checkCache() string {
	if !a.cfg.Embedding.Cache.Enabled {
		return "disabled"
	}
	dir := a.cfg.EmbeddingCacheDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Sprintf("empty (%s)", dir)
	}

	bc, err := cache.Open(dir)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = bc.Close() }()

	n, err := bc.Len()
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%d vectors in %s", n, dir)
}

func (a *app) checkGeneration(ctx context.Context, timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s := &stack{}
	defer func() { _ = s.Close() }()
	if err := a.providers(ctx, s); err != nil {
		return fmt.Sprintf("error: %s", err)
	}

	var parts []string
	for _, st := range s.registry.Statuses(ctx) {
		parts = append(parts, describeStatus(st))
	}
	return a.cfg.Generation.Provider + "/" + a.cfg.Generation.Model + ": " + strings.Join(parts, "; ")
}

func describeStatus(st provider.ProviderStatus) string {
	state := "available"
	if !st.Available {
		state = "unavailable"
	}
	if st.Message != "" {
		state += " (" + st.Message + ")"
	}
	return state
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "."
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
