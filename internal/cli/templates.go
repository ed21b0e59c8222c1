package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/importer"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/validation"
)

func newTemplatesCmd(app *App) *cobra.Command {
	var filter models.TemplateFilter

	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Browse the template catalogue",
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List templates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateTags(filter.Tags); err != nil {
				return err
			}
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			templates, err := svc.FilterTemplates(filter)
			if err != nil {
				return err
			}
			return formatTemplates(cmd.OutOrStdout(), templates, app.format)
		},
	}
	list.Flags().StringVar(&filter.Status, "status", "", "verified (default), draft or all")
	list.Flags().StringVar(&filter.Type, "type", "", "Document type")
	list.Flags().StringSliceVarP(&filter.Tags, "tag", "t", nil, "Required tag (repeatable)")
	list.Flags().StringVarP(&filter.Query, "query", "q", "", "Substring match on name and tags")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search templates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			templates, err := svc.SearchTemplates(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return formatTemplates(cmd.OutOrStdout(), templates, app.format)
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template and its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			tmpl, err := svc.GetTemplate(args[0])
			if err != nil {
				return err
			}
			return formatSingleTemplate(cmd.OutOrStdout(), tmpl, app.format)
		},
	}

	tags := &cobra.Command{
		Use:   "tags",
		Short: "List every template tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			all, err := svc.AllTags()
			if err != nil {
				return err
			}
			if app.format == "json" {
				return writeJSON(cmd.OutOrStdout(), all)
			}
			for _, tag := range all {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}

	cmd.AddCommand(list, search, show, tags, newTemplatesImportCmd(app))
	return cmd
}

func newTemplatesImportCmd(app *App) *cobra.Command {
	var opts importer.Options
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Copy template files from a directory into the library",
		Long: `Copy template files (.html, .htm, .md with YAML frontmatter) from a
directory into the library. Templates without a status are imported as drafts
and only listed with --status draft or --status all.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateTags(opts.Tags); err != nil {
				return err
			}
			svc, err := app.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.ImportTemplates(args[0], opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if app.format == "json" {
				return writeJSON(w, map[string]interface{}{
					"imported": result.Imported,
					"skipped":  result.Skipped,
					"errors":   result.ErrorMessages(),
				})
			}
			verb := "Imported"
			if opts.DryRun {
				verb = "Would import"
			}
			for _, t := range result.Imported {
				fmt.Fprintf(w, "%s %s (%s)\n", verb, t.ID, t.Status)
			}
			for _, id := range result.Skipped {
				fmt.Fprintf(w, "Skipped %s: already in the library\n", id)
			}
			for _, msg := range result.ErrorMessages() {
				fmt.Fprintf(w, "Failed %s\n", msg)
			}
			if len(result.Errors) > 0 {
				return errors.ValidationError(fmt.Sprintf("%d template(s) could not be imported", len(result.Errors)))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "Tag added to every imported template (repeatable)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Status for every imported template")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace templates with the same ID")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Check the files without writing them")
	return cmd
}

// formatTemplates formats the catalogue for output
func formatTemplates(w io.Writer, templates []*models.Template, format string) error {
	switch format {
	case "json":
		return writeJSON(w, templates)
	case "ids":
		for _, t := range templates {
			fmt.Fprintln(w, t.ID)
		}
	case "table":
		fmt.Fprintf(w, "%-32s %-30s %-12s %s\n", "ID", "Name", "Type", "Fields")
		fmt.Fprintln(w, strings.Repeat("-", 84))
		for _, t := range templates {
			fmt.Fprintf(w, "%-32s %-30s %-12s %d\n", t.ID, clip(t.Name, 30), t.Type, len(t.Fields))
		}
	default:
		for _, t := range templates {
			fmt.Fprintf(w, "%s - %s\n", t.ID, t.Name)
			if t.Summary != "" {
				fmt.Fprintf(w, "  %s\n", t.Summary)
			}
			if len(t.Tags) > 0 {
				fmt.Fprintf(w, "  Tags: %s\n", strings.Join(t.Tags, ", "))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// formatSingleTemplate prints a template with its field list
func formatSingleTemplate(w io.Writer, t *models.Template, format string) error {
	if format == "json" {
		return writeJSON(w, t)
	}
	fmt.Fprintf(w, "ID: %s\n", t.ID)
	fmt.Fprintf(w, "Name: %s\n", t.Name)
	if t.Summary != "" {
		fmt.Fprintf(w, "Description: %s\n", t.Summary)
	}
	if t.Type != "" {
		fmt.Fprintf(w, "Type: %s\n", t.Type)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(t.Tags, ", "))
	}
	fmt.Fprintln(w, "\nFields:")
	for _, f := range t.Fields {
		required := ""
		if f.Required {
			required = " (required)"
		}
		kind := f.Type
		if kind == "" {
			kind = models.FieldText
		}
		fmt.Fprintf(w, "  %-26s %-9s %s%s\n", f.Name, kind, f.DisplayLabel(), required)
		if hint := validation.Hint(f); hint != "" {
			fmt.Fprintf(w, "  %-26s %-9s %s\n", "", "", hint)
		}
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
