// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyaya-dev/nyaya/internal/mcptools"
	"github.com/nyaya-dev/nyaya/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long:  "Serve /api/v1/ask, /api/v1/chat, /api/v1/search and /api/v1/collection, with the OpenAPI document at /openapi.json.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default: server.listen)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.queryStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	svc, err := a.ragService(s)
	if err != nil {
		return err
	}

	listen := a.cfg.Server.Listen
	if l, _ := cmd.Flags().GetString("listen"); l != "" {
		listen = l
	}

	server.Version = version
	srv, err := server.New(server.Config{
		ListenAddr:  listen,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
			Burst:             a.cfg.Server.Burst,
		},
	}, server.Deps{
		Query:      svc,
		Collection: s.index,
		Providers:  s.registry,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	return srv.Start(ctx)
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask and search tools over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing
ask_constitution and search_constitution. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMCP(cmd)
		},
	}
}

func (a *app) runMCP(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.queryStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	svc, err := a.ragService(s)
	if err != nil {
		return err
	}

	return mcptools.Serve(ctx, mcptools.NewServer(svc, version, a.logger), cmd.InOrStdin(), cmd.OutOrStdout())
}
