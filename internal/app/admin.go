package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rbaliyan/postbox"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and indexes, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(context.Context, postbox.Service) error {
				fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.Store.Driver)
				return nil
			})
		},
	}
}

func newUsersCmd(a *app) *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var email, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc postbox.Service) error {
				user, err := svc.CreateUser(ctx, email, name)
				if err != nil {
					if _, ok := postbox.IsEventPublishError(err); !ok || user == nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s <%s> id=%s\n", user.Name, user.Email, user.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&name, "name", "", "display name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc postbox.Service) error {
				all, err := svc.ListUsers(ctx)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"ID", "Email", "Name", "Created"})
				table.SetAutoFormatHeaders(true)
				table.SetAutoWrapText(false)
				table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				table.SetCenterSeparator("")
				table.SetColumnSeparator("")
				table.SetRowSeparator("")
				table.SetHeaderLine(false)
				table.SetBorder(false)
				table.SetTablePadding("\t")
				for _, u := range all {
					table.Append([]string{u.ID, u.Email, u.Name, u.CreatedAt.Format(time.RFC3339)})
				}
				table.Render()
				return nil
			})
		},
	}

	users.AddCommand(create, list)
	return users
}

// withService runs fn against a connected service and tears everything down.
func (a *app) withService(ctx context.Context, fn func(context.Context, postbox.Service) error) error {
	svc, b, err := connect(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, svc)
	return errors.Join(runErr, svc.Close(ctx), b.Close(ctx))
}
