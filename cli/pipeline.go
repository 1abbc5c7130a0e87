// ABOUTME: Pipeline CLI command
// ABOUTME: Prints the unified lead+opportunity pipeline with per-stage totals
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/pipeline"
)

// PipelineCommand prints the aggregated pipeline.
func PipelineCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	filter := fs.String("filter", "all", "Item filter: all, leads, opportunities")
	search := fs.String("search", "", "Search over name, organization, stage, owner")
	refresh := fs.Bool("refresh", false, "Force a refresh from the backend")
	_ = fs.Parse(args)

	ctx := context.Background()
	app.Store.Hydrate()
	if err := app.Store.Load(ctx, models.TypeClient, *refresh); err != nil {
		if len(app.Store.Clients()) == 0 && len(app.Store.Leads()) == 0 {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: refresh failed, showing cached data: %v\n", err)
	}
	if err := app.Store.AttachOpportunities(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: opportunity fetch failed: %v\n", err)
	}

	summary := pipeline.Aggregate(app.Store.Leads(), app.Store.Clients(), pipeline.Query{
		Filter: pipeline.TypeFilter(*filter),
		Search: *search,
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tKIND\tNAME\tORGANIZATION\tVALUE\tOWNER")
	for _, item := range summary.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			item.Stage, item.Kind, item.Name, item.Organization, item.Value, item.Owner)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	for _, stage := range summary.Stages {
		fmt.Printf("%-14s %3d items  %12.2f\n", stage.Stage, stage.Count, stage.Value)
	}
	fmt.Printf("%-14s %3d items  %12.2f\n", "TOTAL", summary.TotalCount, summary.TotalValue)
	return nil
}
