package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oarkflow/json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oarkflow/cinefusion"
	"github.com/oarkflow/cinefusion/config"
	"github.com/oarkflow/cinefusion/loader"
	"github.com/oarkflow/cinefusion/logger"
)

var (
	cfgFile  string
	logLevel string
	dataPath string

	cfg *config.Config
	log *zap.SugaredLogger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cinefusion",
		Short: "In-memory movie search and autocomplete",
		Long: `cinefusion loads a movie dataset into memory and answers prefix
suggestions and filtered, sorted, paginated searches over it, either from
the command line or over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("data") {
				cfg.Data.Path = dataPath
				cfg.Database.Driver = ""
			}
			log = logger.New("cinefusion", cfg.Log.Level, cfg.Log.Output...)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&dataPath, "data", "", "dataset file (.csv or .json), overrides the configured source")

	root.AddCommand(newSuggestCmd(), newSearchCmd(), newStatsCmd(), newServeCmd())
	return root
}

// loadRecords reads the dataset from the configured database or file.
func loadRecords(ctx context.Context) ([]cinefusion.Record, error) {
	opts := []loader.Option{loader.WithLogger(log), loader.WithSkipInvalid(true)}
	if db := cfg.Database; db.Driver != "" {
		conn, err := loader.Connect(loader.DBConfig{
			Driver:   db.Driver,
			Host:     db.Host,
			Port:     db.Port,
			Username: db.Username,
			Password: db.Password,
			Database: db.Database,
		})
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = conn.Close()
		}()
		return loader.FromDatabase(ctx, conn, db.Query, opts...)
	}
	if cfg.Data.Path == "" {
		return nil, fmt.Errorf("no dataset configured: set data.path or database.driver")
	}
	return loader.File(ctx, cfg.Data.Path, cfg.Data.Format, opts...)
}

func buildEngine(ctx context.Context) (*cinefusion.Engine, error) {
	records, err := loadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	opts := append(cfg.EngineOptions(), cinefusion.WithLogger(log))
	return cinefusion.Build(ctx, records, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseKV turns key=value arguments into parameters.
func parseKV(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		if prev, dup := params[key]; dup && (key == "genre" || key == "genres") {
			value = prev + "," + value
		}
		params[key] = value
	}
	return params, nil
}
