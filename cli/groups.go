// ABOUTME: Company group CLI commands
// ABOUTME: List, create, delete groups and assign entities to them
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
)

// GroupsCommand routes group subcommands.
func GroupsCommand(app *App, args []string) error {
	if len(args) == 0 {
		return listGroups(app, nil)
	}
	switch args[0] {
	case "list":
		return listGroups(app, args[1:])
	case "create":
		return createGroup(app, args[1:])
	case "delete":
		return deleteGroup(app, args[1:])
	case "assign":
		return assignGroup(app, args[1:])
	case "members":
		return groupMembers(app, args[1:])
	default:
		return fmt.Errorf("unknown groups subcommand: %s", args[0])
	}
}

func listGroups(app *App, args []string) error {
	fs := flag.NewFlagSet("groups list", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "Force a refresh from the backend")
	_ = fs.Parse(args)

	groups, err := app.Store.Groups(context.Background(), *refresh)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tINDUSTRY\tCOMPANIES")
	for _, g := range groups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", g.ID, g.Name, g.Industry, g.Count.ChildCompanies)
	}
	return w.Flush()
}

func createGroup(app *App, args []string) error {
	fs := flag.NewFlagSet("groups create", flag.ExitOnError)
	name := fs.String("name", "", "Group name (required)")
	industry := fs.String("industry", "", "Industry")
	notes := fs.String("notes", "", "Notes")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	group, err := app.Store.CreateGroup(context.Background(), models.Group{
		Name: *name, Industry: *industry, Notes: *notes,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created group %s (%s)\n", group.Name, group.ID)
	return nil
}

func deleteGroup(app *App, args []string) error {
	fs := flag.NewFlagSet("groups delete", flag.ExitOnError)
	id := fs.String("id", "", "Group id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if err := app.Store.DeleteGroup(context.Background(), *id); err != nil {
		return err
	}
	fmt.Printf("Deleted group %s\n", *id)
	return nil
}

func assignGroup(app *App, args []string) error {
	fs := flag.NewFlagSet("groups assign", flag.ExitOnError)
	entityType := fs.String("type", "client", "Entity type: client or lead")
	entityID := fs.String("entity", "", "Entity id (required)")
	groupID := fs.String("group", "", "Group id (required)")
	groupName := fs.String("group-name", "", "Group display name")
	_ = fs.Parse(args)

	if *entityID == "" || *groupID == "" {
		return fmt.Errorf("--entity and --group are required")
	}

	app.Store.Hydrate()
	t := normalize.EntityType(*entityType)
	group := models.GroupRef{ID: *groupID, Name: *groupName}
	if err := app.Store.AssignGroup(context.Background(), t, *entityID, group); err != nil {
		return err
	}
	fmt.Printf("Assigned %s to group %s\n", *entityID, *groupID)
	return nil
}

func groupMembers(app *App, args []string) error {
	fs := flag.NewFlagSet("groups members", flag.ExitOnError)
	id := fs.String("id", "", "Group id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	members, err := app.Store.GroupMembers(context.Background(), *id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS")
	for _, m := range members {
		t := "client"
		if m.IsLead() {
			t = "lead"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, t, m.Status)
	}
	return w.Flush()
}
