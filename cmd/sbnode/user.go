package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/creamcroissant/sbnode/internal/service"
)

func init() {
	var userCmd = &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  `List, add, delete and modify users of both listeners.`,
	}

	// user list
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List users and their share links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				listing, err := a.manager.ListUsers(ctx)
				if err != nil {
					return err
				}
				printListing(os.Stdout, listing)
				return nil
			})
		},
	}
	userCmd.AddCommand(listCmd)

	// user add <name>
	var addLabel string
	var addCmd = &cobra.Command{
		Use:   "add [name]",
		Short: "Add a user to both listeners",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				req := service.AddUserRequest{Label: addLabel}
				if len(args) > 0 {
					req.Username = args[0]
				} else {
					name, err := promptText("Username", "")
					if err != nil {
						return err
					}
					req.Username = name
				}
				res, err := a.manager.AddUser(ctx, req)
				if err != nil {
					return err
				}
				printResult(os.Stdout, res)
				return nil
			})
		},
	}
	addCmd.Flags().StringVarP(&addLabel, "label", "l", "", "Display label used in share links")
	userCmd.AddCommand(addCmd)

	// user delete [name]
	var deleteCmd = &cobra.Command{
		Use:     "delete [name]",
		Aliases: []string{"del", "rm"},
		Short:   "Delete a user from both listeners",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				name, err := userArg(ctx, a, args, "Select user to delete")
				if err != nil {
					return err
				}
				res, err := a.manager.DeleteUser(ctx, name)
				if err != nil {
					return err
				}
				printResult(os.Stdout, res)
				return nil
			})
		},
	}
	userCmd.AddCommand(deleteCmd)

	userCmd.AddCommand(newModifyCmd())
	rootCmd.AddCommand(userCmd)
}

func newModifyCmd() *cobra.Command {
	var modifyCmd = &cobra.Command{
		Use:   "modify",
		Short: "Change a user's credentials or display label",
	}

	run := func(args []string, label string, fn func(ctx context.Context, a *app, name string) (*service.Result, error)) error {
		return withApp(func(ctx context.Context, a *app) error {
			name, err := userArg(ctx, a, args, label)
			if err != nil {
				return err
			}
			res, err := fn(ctx, a, name)
			if err != nil {
				return err
			}
			printResult(os.Stdout, res)
			return nil
		})
	}

	// user modify regen-uuid [name]
	modifyCmd.AddCommand(&cobra.Command{
		Use:   "regen-uuid [name]",
		Short: "Issue a new VLESS uuid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, "Select user", func(ctx context.Context, a *app, name string) (*service.Result, error) {
				return a.manager.RegenerateIdentifier(ctx, name)
			})
		},
	})

	// user modify regen-password [name] [--password]
	var password string
	var passwordCmd = &cobra.Command{
		Use:   "regen-password [name]",
		Short: "Set a new Hysteria2 password (random unless --password is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, "Select user", func(ctx context.Context, a *app, name string) (*service.Result, error) {
				return a.manager.RegenerateSecret(ctx, name, password)
			})
		},
	}
	passwordCmd.Flags().StringVarP(&password, "password", "p", "", "Use this password instead of a random one")
	modifyCmd.AddCommand(passwordCmd)

	// user modify rename <name> <label>
	modifyCmd.AddCommand(&cobra.Command{
		Use:   "rename <name> [label]",
		Short: "Change the display label (empty clears it)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) == 2 {
				label = args[1]
			}
			return run(args[:1], "Select user", func(ctx context.Context, a *app, name string) (*service.Result, error) {
				return a.manager.SetDisplayLabel(ctx, name, label)
			})
		},
	})

	return modifyCmd
}

// userArg returns the named user or asks the operator to pick one.
func userArg(ctx context.Context, a *app, args []string, label string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return selectUser(ctx, a, label)
}
