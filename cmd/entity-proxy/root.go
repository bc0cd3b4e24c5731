package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/extract"
	"github.com/Sternrassler/entity-connector/pkg/pagination"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "entity-proxy",
		Short:         "Fetch catalog entities from a paginated vendor API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "connector.yaml", "path to the connector config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newFetchCmd(opts),
		newEntitiesCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, opts.configPath, opts.logLevel)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.file.Server.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(a.connector, a.redis, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", addr).Msg("Starting entity proxy")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config or PORT)")
	return cmd
}

type fetchOptions struct {
	filters []string
	page    int
	size    int
	cursor  string
	all     bool
	timeout time.Duration
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	fo := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch <entity>",
		Short: "Fetch one page, or every page, of an entity as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, fo.timeout)
			defer cancel()

			a, err := bootstrap(ctx, opts.configPath, opts.logLevel)
			if err != nil {
				return err
			}
			defer a.close()

			filters, err := parseFilters(fo.filters)
			if err != nil {
				return err
			}

			var out any
			if fo.all {
				records, err := a.connector.FetchAll(ctx, args[0], filters)
				if err != nil {
					return err
				}
				if records == nil {
					records = []*extract.Record{}
				}
				out = allResponse{Entity: args[0], Count: len(records), Records: records}
			} else {
				result, err := a.connector.Fetch(ctx, args[0], filters, pagination.PageRequest{
					Page:   fo.page,
					Size:   fo.size,
					Cursor: fo.cursor,
				})
				if err != nil {
					return err
				}
				out = newPageResponse(args[0], result)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringArrayVarP(&fo.filters, "filter", "f", nil, "filter as field:op:value (repeatable)")
	cmd.Flags().IntVar(&fo.page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&fo.size, "size", 0, "page size (0 uses the entity default)")
	cmd.Flags().StringVar(&fo.cursor, "cursor", "", "cursor token for cursor-paginated entities")
	cmd.Flags().BoolVar(&fo.all, "all", false, "fetch every page")
	cmd.Flags().DurationVar(&fo.timeout, "timeout", 5*time.Minute, "overall fetch timeout")
	return cmd
}

func newEntitiesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the entities in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), opts.configPath, opts.logLevel)
			if err != nil {
				return err
			}
			defer a.close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMETHOD\tPAGINATION\tENDPOINT")
			for _, name := range a.connector.Entities() {
				desc, err := a.connector.Describe(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", desc.Name, desc.Method, desc.Pagination.Style, desc.Endpoint)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "entity-proxy %s\n", version)
		},
	}
}
