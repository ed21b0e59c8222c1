package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/doclast/docfill/internal/api"
	"github.com/doclast/docfill/internal/config"
	"github.com/doclast/docfill/internal/storage"
	"github.com/doclast/docfill/internal/ui"
)

func newInitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the library and a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			root := svc.Storage().BaseDir()
			w := cmd.OutOrStdout()

			path := filepath.Join(root, config.FileName)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				data, err := yaml.Marshal(app.cfg)
				if err != nil {
					return fmt.Errorf("failed to encode config: %w", err)
				}
				if err := os.WriteFile(path, data, 0644); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				fmt.Fprintf(w, "Wrote %s\n", path)
			}
			fmt.Fprintf(w, "Library ready at %s\n", root)
			return nil
		},
	}
}

func newFillCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "fill [draft-id]",
		Short: "Fill templates interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			draftID := ""
			if len(args) == 1 {
				draftID = args[0]
				if _, err := svc.GetDraft(draftID); err != nil {
					return err
				}
			}
			return ui.Run(svc, draftID)
		},
	}
}

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				app.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				app.cfg.Server.Watch = watch
			}
			if app.verbose {
				app.cfg.Server.ErrorDetails = true
			}
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if app.cfg.Server.Watch {
				watcher, err := storage.NewWatcher(svc.Storage(), func(string) { svc.ReloadTemplates() })
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				if err := watcher.Start(ctx); err != nil {
					return fmt.Errorf("failed to watch templates: %w", err)
				}
				defer watcher.Stop()
			}

			api.Version = app.version
			server := api.NewServer(svc, app.cfg.Server, app.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			app.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				app.logger.Warn("server shutdown failed", zap.Error(err))
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload templates when files change")
	return cmd
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "docfill %s\n", app.version)
			return nil
		},
	}
}
