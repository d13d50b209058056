// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nyaya-dev/nyaya/internal/config"
	"github.com/nyaya-dev/nyaya/internal/logging"
	"github.com/nyaya-dev/nyaya/internal/secrets"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// annotationNoConfig marks commands that run without loading configuration.
const annotationNoConfig = "nyaya.no-config"

// secretStoreFactory creates a secrets.Store. Tests substitute an in-memory
// implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// app carries the state a command run shares between its pre-run and the
// command body.
type app struct {
	v         *viper.Viper
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// NewRootCmd creates the root nyaya command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "nyaya",
		Short:         "NyayaGPT: ask questions about the Constitution of India",
		Long:          "Nyaya indexes the Constitution of India into a vector store and answers questions from the retrieved articles.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			return a.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newIngestCmd(a),
		newAskCmd(a),
		newChatCmd(a),
		newSearchCmd(a),
		newCollectionCmd(a),
		newMigrateCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newSecretCmd(),
		newDoctorCmd(a),
		newVersionCmd(),
	)

	return root
}

// load reads the dotenv file and config, resolves keyring references and
// builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		// Variables already in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nyayaerr.Wrapf(err, nyayaerr.CodeConfigLoadReadFailure, "loading %s", envFile)
		}
	}

	if err := a.initViper(cmd); err != nil {
		return err
	}

	if unresolved := secrets.ResolveViperSecrets(a.v, secretStoreFactory()); len(unresolved) > 0 {
		slog.Debug("unresolved keyring references", "keys", unresolved)
	}

	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	config.WarnInsecurePermissions(a.v.ConfigFileUsed(), envFile)

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}

// skipsConfig reports whether cmd or one of its parents is annotated with
// annotationNoConfig.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoConfig] == "true" {
			return true
		}
	}
	return false
}

// initViper applies defaults, env bindings, flag bindings and the config
// file so the standard precedence (flag > env > file > defaults) holds.
func (a *app) initViper(cmd *cobra.Command) error {
	v := a.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nyayaerr.Errorf(nyayaerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper never matches the ./nyaya binary.
		v.SetConfigName("nyaya")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/nyaya")
		v.AddConfigPath("/etc/nyaya")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nyayaerr.Errorf(nyayaerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return nyayaerr.Errorf(nyayaerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		if err := v.BindPFlag("data_dir", f); err != nil {
			return nyayaerr.Errorf(nyayaerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
		}
	}

	return nil
}
