// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/visuworld/visuworld/internal/config"
	"github.com/visuworld/visuworld/internal/secrets"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// app carries the per-invocation configuration shared by subcommands. Each
// root command owns its own viper so tests do not leak settings.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// config decodes and validates the settings resolved by initViper.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// NewRootCmd creates the root visuworld command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "visuworld",
		Short:         "Visuworld: GLSL shader generation from text prompts",
		Long:          "Visuworld retrieves similar shaders from a vector index and asks a language model to write a new GLSL fragment shader.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "directory for the sqlite index and shader database")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before configuration")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-format", "", "log format: text or json")

	root.AddCommand(
		newServeCmd(a),
		newGenerateCmd(a),
		newModifyCmd(a),
		newIngestCmd(a),
		newIndexCmd(a),
		newShadersCmd(a),
		newSecretCmd(),
		newDoctorCmd(a),
		newVersionCmd(),
	)

	return root
}

// initViper layers flags over env over file over defaults, then resolves
// keyring references and installs the slog handler.
func (a *app) initViper(cmd *cobra.Command) error {
	v := a.v

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return vwerr.Errorf(vwerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so viper does not match the bare
		// ./visuworld binary as a config file.
		v.SetConfigName("visuworld")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/visuworld")
		v.AddConfigPath("/etc/visuworld")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return vwerr.Errorf(vwerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if err := a.bootstrap(); err != nil {
				return err
			}
		}
	}

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"storage.data_dir": "data-dir",
		"log.format":       "log-format",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return vwerr.Errorf(vwerr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
			}
		}
	}

	secrets.ResolveViper(v, secretStoreFactory())

	verbose, _ := flags.GetBool("verbose")
	setupLogging(cmd.ErrOrStderr(), v.GetString("log.level"), v.GetString("log.format"), verbose)
	config.WarnInsecurePermissions(v.ConfigFileUsed())
	return nil
}

// bootstrap writes the commented default config to the user config
// directory on first run and reads it back.
func (a *app) bootstrap() error {
	path, err := config.DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return nil
	}
	if written := config.BootstrapConfig(path); written != "" {
		a.v.SetConfigFile(written)
		if err := a.v.ReadInConfig(); err != nil {
			return vwerr.Errorf(vwerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
		}
	}
	return nil
}

// loadEnvFile exports the variables of a dotenv file without overriding
// ones already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return vwerr.Errorf(vwerr.CodeConfigLoadReadFailure, "loading %s: %w", path, err)
	}
	return nil
}

func setupLogging(w io.Writer, level, format string, verbose bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// readInput returns the joined args, or stdin when there are none.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	text := strings.Join(args, " ")
	if text == "" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", vwerr.Errorf(vwerr.CodeCLIInputInvalid, "reading stdin: %w", err)
		}
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", vwerr.New(vwerr.CodeCLIInputInvalid, "a prompt is required (argument or stdin)")
	}
	return text, nil
}
