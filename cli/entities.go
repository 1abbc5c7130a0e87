// ABOUTME: Entity CLI commands
// ABOUTME: Human-friendly commands for listing and mutating clients and leads
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
	"github.com/harperreed/funnel/store"
)

// ListCommand lists clients or leads.
func ListCommand(app *App, t models.EntityType, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	search := fs.String("search", "", "Filter by substring over name, status, stage, industry, groups")
	status := fs.String("status", "", "Filter by status")
	sortKey := fs.String("sort", store.SortByName, "Sort: name, updated, stage, revenue")
	page := fs.Int("page", 1, "Page number")
	refresh := fs.Bool("refresh", false, "Force a refresh from the backend")
	_ = fs.Parse(args)

	app.Store.Hydrate()
	if err := app.Store.Load(context.Background(), t, *refresh); err != nil {
		if len(app.Store.Entities(t)) == 0 {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: refresh failed, showing cached data: %v\n", err)
	}

	app.Store.SetSearchTerm(t, *search)
	app.Store.SetStatusFilter(t, *status)
	app.Store.SetSortKey(t, *sortKey)
	app.Store.SetPage(t, *page)

	entities := app.Store.VisibleEntities(t)
	total := app.Store.VisibleTotal(t)

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTAGE\tINDUSTRY\tGROUPS\t★")
	for _, e := range entities {
		star := ""
		if e.IsStarred {
			star = "★"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Name, e.Status, e.Stage, e.Industry,
			strings.Join(e.GroupNames(), ", "), star)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d (page %d)\n", len(entities), total, app.Store.ListStateFor(t).Page)
	return nil
}

// SaveCommand creates or updates a client or lead.
func SaveCommand(app *App, t models.EntityType, args []string) error {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	id := fs.String("id", "", "Entity id (omit to create)")
	name := fs.String("name", "", "Name (required)")
	status := fs.String("status", "", "Status")
	stage := fs.String("stage", "", "Pipeline stage (legacy values are normalized)")
	industry := fs.String("industry", "", "Industry")
	revenue := fs.Float64("revenue", 0, "Revenue / deal value")
	notes := fs.String("notes", "", "Free-text notes")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	app.Store.Hydrate()
	entity := models.Entity{
		ID:       *id,
		Type:     t,
		Name:     *name,
		Status:   *status,
		Stage:    normalize.Stage(*stage),
		Industry: *industry,
		Revenue:  *revenue,
		Notes:    *notes,
	}
	if *id != "" {
		if err := app.Store.Load(context.Background(), t, false); err == nil {
			if existing, ok := app.Store.Entity(t, *id); ok {
				entity = mergeFlags(existing, *name, *status, *stage, *industry, *revenue, *notes)
			}
		}
	}

	saved, err := app.Store.SaveEntity(context.Background(), entity, false)
	if err != nil {
		var localOnly *store.LocalOnlyError
		if errors.As(err, &localOnly) {
			fmt.Printf("Saved %s locally; the server reported a conflict: %v\n", saved.ID, localOnly.Cause)
			return nil
		}
		return err
	}
	fmt.Printf("Saved %s: %s (%s, %s)\n", t, saved.Name, saved.ID, saved.Stage)
	return nil
}

func mergeFlags(e models.Entity, name, status, stage, industry string, revenue float64, notes string) models.Entity {
	e.Name = name
	if status != "" {
		e.Status = status
	}
	if stage != "" {
		e.Stage = normalize.Stage(stage)
	}
	if industry != "" {
		e.Industry = industry
	}
	if revenue != 0 {
		e.Revenue = revenue
	}
	if notes != "" {
		e.Notes = notes
	}
	return e
}

// DeleteCommand deletes a client or lead.
func DeleteCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	entityType := fs.String("type", "client", "Entity type: client or lead")
	id := fs.String("id", "", "Entity id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	app.Store.Hydrate()
	t := normalize.EntityType(*entityType)
	if err := app.Store.DeleteEntity(context.Background(), t, *id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", *id)
	return nil
}

// StarCommand toggles the starred flag on an entity.
func StarCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("star", flag.ExitOnError)
	entityType := fs.String("type", "client", "Entity type: client or lead")
	id := fs.String("id", "", "Entity id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	app.Store.Hydrate()
	t := normalize.EntityType(*entityType)
	if err := app.Store.Load(context.Background(), t, false); err != nil {
		if len(app.Store.Entities(t)) == 0 {
			return err
		}
	}
	if err := app.Store.ToggleStar(context.Background(), t, *id); err != nil {
		return err
	}
	e, _ := app.Store.Entity(t, *id)
	state := "unstarred"
	if e.IsStarred {
		state = "starred"
	}
	fmt.Printf("%s is now %s\n", e.Name, state)
	return nil
}

// StageCommand updates the pipeline stage of an entity.
func StageCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("stage", flag.ExitOnError)
	entityType := fs.String("type", "lead", "Entity type: client or lead")
	id := fs.String("id", "", "Entity id (required)")
	stage := fs.String("stage", "", "New stage (required; legacy values are normalized)")
	_ = fs.Parse(args)

	if *id == "" || *stage == "" {
		return fmt.Errorf("--id and --stage are required")
	}

	app.Store.Hydrate()
	t := normalize.EntityType(*entityType)
	if err := app.Store.Load(context.Background(), t, false); err != nil {
		if len(app.Store.Entities(t)) == 0 {
			return err
		}
	}
	if err := app.Store.UpdateField(context.Background(), t, *id, "stage", *stage); err != nil {
		return err
	}
	e, _ := app.Store.Entity(t, *id)
	fmt.Printf("%s moved to %s\n", e.Name, e.Stage)
	return nil
}
