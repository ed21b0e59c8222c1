package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclast/docfill/internal/clipboard"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/service"
	"github.com/doclast/docfill/internal/validation"
)

func newDraftCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "draft",
		Aliases: []string{"drafts"},
		Short:   "Create, fill and export drafts",
	}
	cmd.AddCommand(
		newDraftNewCmd(app),
		newDraftListCmd(app),
		newDraftShowCmd(app),
		newDraftSetCmd(app),
		newDraftValidateCmd(app),
		newDraftPreviewCmd(app),
		newDraftExportCmd(app),
		newDraftHTMLCmd(app),
		newDraftFinalizeCmd(app),
		newDraftRestoreCmd(app),
		newDraftDeleteCmd(app),
	)
	return cmd
}

func newDraftNewCmd(app *App) *cobra.Command {
	var name, filename, description string
	cmd := &cobra.Command{
		Use:   "new <template-id>",
		Short: "Start a draft from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateIdentifier(args[0]); err != nil {
				return err
			}
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			draft, err := svc.CreateDraft(args[0], name)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("filename") || cmd.Flags().Changed("description") {
				details := service.DraftDetails{}
				if cmd.Flags().Changed("filename") {
					details.Filename = &filename
				}
				if cmd.Flags().Changed("description") {
					details.Summary = &description
				}
				if draft, err = svc.UpdateDraftDetails(draft.ID, details); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			switch app.format {
			case "json":
				return writeJSON(w, draft)
			case "ids":
				fmt.Fprintln(w, draft.ID)
			default:
				fmt.Fprintf(w, "Created draft %s (%s)\n", draft.ID, draft.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Draft name")
	cmd.Flags().StringVar(&filename, "filename", "", "Export file name without extension")
	cmd.Flags().StringVar(&description, "description", "", "Short description")
	return cmd
}

func newDraftListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List drafts, most recently edited first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			drafts, err := svc.ListDrafts()
			if err != nil {
				return err
			}
			return formatDrafts(cmd.OutOrStdout(), drafts, app.format)
		},
	}
}

func newDraftShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <draft-id>",
		Short: "Show a draft and its field values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			draft, err := svc.GetDraft(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if app.format == "json" {
				return writeJSON(w, draft)
			}
			tmpl, err := svc.GetTemplate(draft.TemplateID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "ID: %s\n", draft.ID)
			fmt.Fprintf(w, "Name: %s\n", draft.Name)
			fmt.Fprintf(w, "Template: %s\n", tmpl.Name)
			fmt.Fprintf(w, "Status: %s\n", draft.Status)
			fmt.Fprintf(w, "Updated: %s\n", draft.UpdatedAt.Format(time.RFC3339))
			fmt.Fprintln(w)
			for _, f := range tmpl.Fields {
				fmt.Fprintf(w, "  %-26s %s\n", f.Name, draft.FieldValues[f.Name])
			}
			return nil
		},
	}
}

func newDraftSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <draft-id> field=value...",
		Short: "Set field values",
		Long: `Set one or more field values. Values are stored even when they fail
validation; the failures are reported so they can be fixed before finalizing.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			update, err := svc.UpdateDraftFields(args[0], values)
			if err != nil {
				return err
			}
			if err := svc.FlushDraft(cmd.Context(), args[0]); err != nil {
				return errors.StorageError("save draft", err)
			}

			w := cmd.OutOrStdout()
			if app.format == "json" {
				return writeJSON(w, update)
			}
			fmt.Fprintf(w, "Saved %d field(s)\n", len(values))
			printFieldErrors(w, update.Errors)
			return nil
		},
	}
}

// parseAssignments splits field=value arguments
func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.ValidationError(fmt.Sprintf("Expected field=value, got %q", arg))
		}
		values[strings.TrimSpace(name)] = value
	}
	return values, nil
}

func printFieldErrors(w io.Writer, result validation.Result) {
	for _, name := range result.Fields() {
		fmt.Fprintf(w, "  %s: %s\n", name, result[name])
	}
}

func newDraftValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <draft-id>",
		Short: "Check every field; exits non-zero when any field is invalid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.ValidateDraft(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if app.format == "json" {
				if err := writeJSON(w, map[string]interface{}{"valid": !result.HasErrors(), "errors": result}); err != nil {
					return err
				}
			} else if !result.HasErrors() {
				fmt.Fprintln(w, "All fields are valid")
			} else {
				printFieldErrors(w, result)
			}
			if result.HasErrors() {
				return result.ToAppError()
			}
			return nil
		},
	}
}

func newDraftPreviewCmd(app *App) *cobra.Command {
	var width int
	var copyText bool
	cmd := &cobra.Command{
		Use:   "preview <draft-id>",
		Short: "Render the draft as text in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			text, err := svc.PreviewText(args[0], width)
			if err != nil {
				return err
			}
			if copyText {
				if err := clipboard.New().Copy(cmd.Context(), text); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().IntVarP(&width, "width", "w", 80, "Word wrap width")
	cmd.Flags().BoolVar(&copyText, "copy", false, "Copy the text to the clipboard instead of printing it")
	return cmd
}

func newDraftExportCmd(app *App) *cobra.Command {
	var strategy, output string
	var archive bool
	cmd := &cobra.Command{
		Use:   "export <draft-id>",
		Short: "Export the draft to PDF",
		Long: `Export the draft to PDF. Without --strategy the configured strategies are
tried in order until one succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.FlushDraft(cmd.Context(), args[0]); err != nil {
				return err
			}
			res, err := svc.ExportDraftWith(cmd.Context(), args[0], strategy)
			if err != nil {
				return err
			}
			return app.writeExport(cmd, svc, res, output, archive)
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Only use this strategy (rasterize, structured or print)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default: current directory)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Also store a copy in the configured archive")
	return cmd
}

func newDraftHTMLCmd(app *App) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "html <draft-id>",
		Short: "Save the document as a self-contained HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ExportDraftHTML(args[0])
			if err != nil {
				return err
			}
			return app.writeExport(cmd, svc, res, output, false)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default: current directory)")
	return cmd
}

// writeExport saves res to disk and optionally to the archive
func (a *App) writeExport(cmd *cobra.Command, svc *service.Service, res *export.Result, output string, archive bool) error {
	path, err := outputPath(output, res.Filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, res.Data, 0644); err != nil {
		return errors.StorageError("write export", err)
	}

	location := ""
	if archive {
		if location, err = svc.ArchiveResult(cmd.Context(), res); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	switch a.format {
	case "json":
		return writeJSON(w, map[string]interface{}{
			"path":     path,
			"strategy": res.Strategy,
			"pages":    res.Pages,
			"size":     len(res.Data),
			"archive":  location,
		})
	case "ids":
		fmt.Fprintln(w, path)
	default:
		fmt.Fprintf(w, "Exported %s (%s", path, res.Strategy)
		if res.Pages > 0 {
			fmt.Fprintf(w, ", %d page(s)", res.Pages)
		}
		fmt.Fprintln(w, ")")
		if location != "" {
			fmt.Fprintf(w, "Archived to %s\n", location)
		}
	}
	return nil
}

// outputPath resolves where an export named filename is written. An
// existing directory keeps the export's own name.
func outputPath(output, filename string) (string, error) {
	if output == "" {
		return filename, nil
	}
	info, err := os.Stat(output)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(output, filename), nil
	case err == nil || os.IsNotExist(err):
		return output, nil
	default:
		return "", errors.StorageError("resolve output path", err)
	}
}

func newDraftFinalizeCmd(app *App) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "finalize <draft-id>",
		Short: "Validate, export and archive the draft, then lock it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.FlushDraft(cmd.Context(), args[0]); err != nil {
				return err
			}
			doc, res, err := svc.FinalizeDraft(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output != "" {
				path, err := outputPath(output, res.Filename)
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, res.Data, 0644); err != nil {
					return errors.StorageError("write export", err)
				}
			}

			w := cmd.OutOrStdout()
			switch app.format {
			case "json":
				return writeJSON(w, doc)
			case "ids":
				fmt.Fprintln(w, doc.ID)
			default:
				fmt.Fprintf(w, "Finalized %s as document %s\n", doc.Name, doc.ID)
				if doc.Location != "" {
					fmt.Fprintf(w, "Stored at %s\n", doc.Location)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the PDF here")
	return cmd
}

func newDraftRestoreCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <draft-id>",
		Short: "Restore values from the draft's emergency backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			values, err := svc.RestoreBackup(args[0])
			if err != nil {
				return err
			}
			if err := svc.FlushDraft(cmd.Context(), args[0]); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if app.format == "json" {
				return writeJSON(w, values)
			}
			if len(values) == 0 {
				fmt.Fprintln(w, "No backup to restore")
				return nil
			}
			names := make([]string, 0, len(values))
			for name := range values {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintf(w, "Restored %d field(s): %s\n", len(names), strings.Join(names, ", "))
			return nil
		},
	}
}

func newDraftDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <draft-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a draft and its backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteDraft(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted draft %s\n", args[0])
			return nil
		},
	}
}

func newDocumentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List finalized documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			docs, err := svc.ListDocuments()
			if err != nil {
				return err
			}
			return formatDocuments(cmd.OutOrStdout(), docs, app.format)
		},
	}
}

func formatDrafts(w io.Writer, drafts []*models.DocumentDraft, format string) error {
	switch format {
	case "json":
		return writeJSON(w, drafts)
	case "ids":
		for _, d := range drafts {
			fmt.Fprintln(w, d.ID)
		}
	default:
		fmt.Fprintf(w, "%-36s %-28s %-10s %s\n", "ID", "Name", "Status", "Updated")
		for _, d := range drafts {
			fmt.Fprintf(w, "%-36s %-28s %-10s %s\n", d.ID, clip(d.Name, 28), d.Status, d.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

func formatDocuments(w io.Writer, docs []*models.Document, format string) error {
	switch format {
	case "json":
		return writeJSON(w, docs)
	case "ids":
		for _, d := range docs {
			fmt.Fprintln(w, d.ID)
		}
	default:
		for _, d := range docs {
			fmt.Fprintf(w, "%s  %s  %s\n", d.CreatedAt.Format("2006-01-02 15:04"), d.Filename, d.Name)
			if d.Location != "" {
				fmt.Fprintf(w, "  %s\n", d.Location)
			}
		}
	}
	return nil
}
