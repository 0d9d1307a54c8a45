package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelhub/internal/catalog"
)

func newCatalogCmd(opts *ctlOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "catalog",
		Aliases: []string{"models"},
		Short:   "List the model bundles hubd can serve",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(opts.ModelsDir)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			bundles := cat.List()
			if len(bundles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No model bundles found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tAPIS\tTITLE")
			for _, b := range bundles {
				slug := b.Slug
				if slug == "" {
					slug = "-"
				}
				title := b.Title
				if title == "" {
					title = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, slug, strings.Join(b.APIs, ","), title)
			}
			return w.Flush()
		},
	}
}
