package cmd

import (
	"fmt"
	"io"
	"strings"

	"healthcheck_srv/internal/catalog"

	"github.com/spf13/cobra"
)

func newCatalogCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the health check catalog",
	}
	cmd.AddCommand(newCatalogListCommand(e), newCatalogShowCommand(e), newCatalogExportCommand(e))
	return cmd
}

func newCatalogListCommand(e *env) *cobra.Command {
	var placeholders bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories and their reports",
		Long: `List every category with its reports.

Entries that are still missing a label or a query are hidden unless
--placeholders is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := e.catalog()
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), cat, placeholders)
			return nil
		},
	}

	cmd.Flags().BoolVar(&placeholders, "placeholders", false, "include placeholder entries")
	return cmd
}

func printTree(w io.Writer, cat *catalog.Catalog, placeholders bool) {
	for c := range cat.All() {
		fmt.Fprintf(w, "%s %s\n",
			styleCategory.Render(c.Name),
			styleMuted.Render(fmt.Sprintf("(%d entries, %d placeholders)", len(c.Reports), c.Placeholders())))

		visible := make([]catalog.Report, 0, len(c.Reports))
		for _, r := range c.Reports {
			if placeholders || !r.IsPlaceholder() {
				visible = append(visible, r)
			}
		}

		for i, r := range visible {
			prefix := branch
			if i == len(visible)-1 {
				prefix = lastBranch
			}
			fmt.Fprintln(w, "  "+prefix+entryLabel(r))
		}
	}
}

func entryLabel(r catalog.Report) string {
	switch {
	case !r.HasLabel() && !r.HasQuery():
		return styleWarning.Render("(placeholder)")
	case !r.HasLabel():
		return styleWarning.Render("(unnamed)")
	case !r.HasQuery():
		return r.Label + " " + styleWarning.Render("(no query)")
	default:
		return r.Label
	}
}

func newCatalogShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <category>",
		Short: "Show the reports of one category with their queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := e.catalog()
			if err != nil {
				return err
			}

			c, ok := cat.Category(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", catalog.ErrUnknownCategory, args[0])
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, styleCategory.Render(c.Name))
			if len(c.Reports) == 0 {
				fmt.Fprintln(w, styleMuted.Render("  no reports"))
				return nil
			}
			for i, r := range c.Reports {
				fmt.Fprintf(w, "\n%d. %s\n", i+1, entryLabel(r))
				if r.HasQuery() {
					fmt.Fprintln(w, styleQuery.Render(strings.TrimSpace(r.Query)))
				}
			}
			return nil
		},
	}
}

func newCatalogExportCommand(e *env) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog in its canonical form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := e.catalog()
			if err != nil {
				return err
			}
			return cat.Encode(cmd.OutOrStdout(), catalog.Format(format))
		},
	}

	cmd.Flags().StringVar(&format, "format", string(catalog.FormatYAML), "output format: yaml or json")
	return cmd
}
