// iris trains, evaluates and queries the Iris species classifier.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"irislab/config"
	"irislab/db"
	"irislab/logger"
	"irislab/pipeline"
)

// Version metadata injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit signals a non-zero exit after the command already reported its error.
var errExit = errors.New("exit")

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(stderr, "iris: %v\n", err)
			logger.Report(err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "iris",
		Short:         "Train, evaluate and query the Iris species classifier",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "iris: unknown command %q\n", args[0])
			return errExit
		},
	}
	root.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML config file")
	root.PersistentFlags().String("artifact", "", "Override the model artifact path")
	root.PersistentFlags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	root.AddCommand(
		newTrainCmd(stdout, stderr),
		newEvaluateCmd(stdout, stderr),
		newPredictCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

// env is the configuration and logger shared by the subcommands.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	flush  func()
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if artifact, _ := cmd.Flags().GetString("artifact"); artifact != "" {
		cfg.Model.ArtifactPath = artifact
	}
	level := cfg.Log.Level
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}

	l, err := logger.New(logger.Options{Level: level, Path: cfg.Log.Path})
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	logger.Set(l)

	flush, err := logger.InitSentry(logger.SentryOptions{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     "iris@" + version,
	})
	if err != nil {
		l.Warn("sentry disabled", zap.Error(err))
	}
	return &env{cfg: cfg, logger: l, flush: flush}, nil
}

func (e *env) settings() pipeline.Settings {
	return pipeline.SettingsFrom(e.cfg)
}

// openStore opens the run history. A store that cannot be opened only costs
// the history, so the command carries on without it.
func (e *env) openStore() *db.Store {
	store, err := db.Open(e.cfg.Database.Path)
	if err != nil {
		e.logger.Warn("run history disabled", zap.String("path", e.cfg.Database.Path), zap.Error(err))
		return nil
	}
	return store
}

func (e *env) close(store *db.Store) {
	if store != nil {
		store.Close()
	}
	_ = e.logger.Sync()
	e.flush()
}
