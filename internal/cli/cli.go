// Package cli implements the docfill command line.
//
// SYSTEM ARCHITECTURE ROLE:
// The cobra command tree is the entry point for every interface: one-shot
// commands for scripting, `serve` for the HTTP API and `fill` for the
// interactive form.
//
// INTEGRATION POINTS:
// - internal/config: Load() resolves the config file and DOCFILL_* overrides before any command runs
// - internal/logging: the zap logger is built in PersistentPreRunE
// - internal/service: FromConfig() assembles storage, export pipeline and archive
// - internal/errors/handlers.go: CLIErrorHandler formats failures for the terminal
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/config"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/logging"
	"github.com/doclast/docfill/internal/service"
)

// App carries the state shared by all commands of one invocation
type App struct {
	version string
	cfgPath string
	verbose bool
	format  string

	cfg          *config.Config
	logger       *zap.Logger
	svc          *service.Service
	errorHandler *errors.CLIErrorHandler
}

// quietCommands own the terminal, so only errors are logged
var quietCommands = map[string]bool{"fill": true}

// NewRootCmd builds the command tree
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "docfill",
		Short: "Fill document templates and export them to PDF",
		Long: `docfill keeps a library of document templates with named fields.
Drafts are filled field by field, autosaved as they change and exported
to PDF through a chain of rendering strategies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&app.cfgPath, "config", "c", "", "Config file (default: <library>/config.yaml)")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&app.format, "format", "f", "", "Output format: text, table, json or ids")

	root.AddCommand(
		newInitCmd(app),
		newTemplatesCmd(app),
		newDraftCmd(app),
		newDocumentsCmd(app),
		newFillCmd(app),
		newServeCmd(app),
		newVersionCmd(app),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: a.verbose,
		Quiet:   quietCommands[cmd.Name()],
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.errorHandler = errors.NewCLIErrorHandler(a.verbose, logger)
	return nil
}

// service opens the library on first use
func (a *App) service(ctx context.Context) (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := service.FromConfig(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := svc.InitLibrary(); err != nil {
		svc.Close()
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func (a *App) close() {
	if a.svc != nil {
		if err := a.svc.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close service", zap.Error(err))
		}
		a.svc = nil
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// formatError renders err for the terminal
func (a *App) formatError(err error) string {
	handler := a.errorHandler
	if handler == nil {
		handler = errors.NewCLIErrorHandler(a.verbose, nil)
	}
	return handler.HandleError(err).Error()
}

// Run executes one invocation with the given arguments and output streams
func Run(ctx context.Context, version string, args []string, stdout, stderr io.Writer) error {
	app := &App{version: version}
	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	app.close()
	if err != nil {
		return fmt.Errorf("%s", app.formatError(err))
	}
	return nil
}

// Execute runs the command line against the process arguments
func Execute(version string) {
	if err := Run(context.Background(), version, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
