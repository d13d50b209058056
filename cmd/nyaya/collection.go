// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
)

func newCollectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Inspect or maintain the vector collection",
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show collection name, backend, size and dimension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCollectionInfo(cmd)
		},
	}
	info.Flags().String("format", "text", "output format: text, json or yaml")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCollectionClear(cmd)
		},
	}
	clearCmd.Flags().Bool("yes", false, "do not ask for confirmation")

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Export every record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCollectionDump(cmd)
		},
	}
	dump.Flags().String("format", "json", "output format: json or yaml")
	dump.Flags().Int("limit", 0, "export at most N records (0 for all)")
	dump.Flags().Bool("vectors", false, "include embedding vectors")
	dump.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	cmd.AddCommand(info, clearCmd, dump)
	return cmd
}

func (a *app) runCollectionInfo(cmd *cobra.Command) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, "text", "json", "yaml"); err != nil {
		return err
	}

	s, err := a.storeStack(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	info, err := s.index.Info(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != "text" {
		return encode(out, format, info)
	}
	_, err = fmt.Fprintf(out, "Collection: %s\nBackend:    %s\nRecords:    %d\nDimension:  %d\nMetric:     %s\n",
		info.Name, info.Backend, info.Count, info.Dimension, info.Metric)
	if err == nil && len(info.Metadata) > 0 {
		_, err = fmt.Fprintf(out, "Metadata:   %s\n", describeMetadata(info.Metadata))
	}
	return err
}

// describeMetadata renders collection metadata as sorted key=value pairs.
func describeMetadata(md map[string]any) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, md[k])
	}
	return strings.Join(parts, ", ")
}

func (a *app) runCollectionClear(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := confirm(cmd.InOrStdin(), out,
			fmt.Sprintf("Delete every record in %s collection %q? [y/N] ", a.cfg.Store.Backend, a.cfg.Store.Collection))
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	s, err := a.storeStack(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.index.Clear(cmd.Context()); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Cleared collection %s.\n", a.cfg.Store.Collection)
	return err
}

func (a *app) runCollectionDump(cmd *cobra.Command) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, "json", "yaml"); err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return cliInputError("--limit must not be negative, got %d", limit)
	}
	withVectors, _ := cmd.Flags().GetBool("vectors")

	s, err := a.storeStack(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	records, err := s.index.GetAll(cmd.Context())
	if err != nil {
		return err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if !withVectors {
		for i := range records {
			records[i].Vector = nil
		}
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return cliInputError("creating %s: %v", path, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	return encode(out, format, dumpView(records))
}

// dumpRecord is the export shape; metadata is flattened to plain values.
type dumpRecord struct {
	ID       string         `json:"id" yaml:"id"`
	Text     string         `json:"text" yaml:"text"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
	Vector   []float32      `json:"vector,omitempty" yaml:"vector,omitempty,flow"`
}

func dumpView(records []vectorstore.Record) []dumpRecord {
	out := make([]dumpRecord, len(records))
	for i, r := range records {
		out[i] = dumpRecord{ID: r.ID, Text: r.Text, Metadata: r.Metadata.Map(), Vector: r.Vector}
	}
	return out
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return cliInputError("unknown format %q (want %s)", format, strings.Join(allowed, ", "))
}

// confirm asks a yes/no question on in; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
