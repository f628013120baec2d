package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oarkflow/cinefusion/server"
)

func newSuggestCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Print title suggestions for a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = e.Close()
			}()
			for _, title := range e.Suggest(args[0], limit) {
				fmt.Fprintln(cmd.OutOrStdout(), title)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum suggestions (0 uses the configured default)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [key=value ...]",
		Short: "Run a structured search and print the result as JSON",
		Example: `  cinefusion search q=dark min_rating=8 sort_by=year sort_order=asc
  cinefusion search genre=Drama genre=Crime director=scorsese limit=5
  cinefusion search 'condition=votes > 100000 AND year < 1990'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseKV(args)
			if err != nil {
				return err
			}
			e, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = e.Close()
			}()
			res, err := e.SearchParams(cmd.Context(), params, "cli")
			if err != nil {
				return err
			}
			if err := res.Err(); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Build the index and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = e.Close()
			}()
			return printJSON(cmd.OutOrStdout(), e.Stats())
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
		mode string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve suggestions and searches over HTTP",
		Long: `Start the HTTP server. Endpoints:
  GET  /api/suggestions?q=&limit=
  GET  /api/search?q=&mode=&sort_by=&sort_order=&offset=&limit=&<filters>
  GET  /api/movies?limit=&offset=&sort_by=&sort_order=
  GET  /api/movies/:id
  GET  /api/genres
  GET  /api/directors?search=&limit=
  GET  /api/stats
  GET  /metrics
  debug mode only:
  POST /api/admin/cache/clear
  GET  /api/admin/cache/stats
  GET  /api/admin/performance`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("mode") {
				cfg.Server.Mode = mode
			}

			e, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = e.Close()
			}()

			srv := server.New(server.Config{Addr: cfg.Server.Addr(), Mode: cfg.Server.Mode}, e, log)
			srv.Setup()

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- srv.Start()
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case sig := <-sigChan:
				log.Infow("shutting down", "signal", sig.String())
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := srv.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("server shutdown error: %w", err)
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "server host")
	cmd.Flags().IntVar(&port, "port", 8000, "server port")
	cmd.Flags().StringVar(&mode, "mode", "release", "gin mode (debug, release, test)")
	return cmd
}
