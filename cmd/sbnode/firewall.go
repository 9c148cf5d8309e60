package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/creamcroissant/sbnode/internal/firewall"
)

func init() {
	var firewallCmd = &cobra.Command{
		Use:   "firewall",
		Short: "Firewall commands",
	}

	// firewall status
	firewallCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show firewall state and open ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				st, err := a.firewall.Status(ctx)
				if err != nil {
					return err
				}
				state := "inactive"
				if st.Active {
					state = "active"
				}
				fmt.Printf("Backend: %s\nState:   %s\n", st.Backend, state)
				if len(st.AllowedPorts) > 0 {
					fmt.Printf("Allowed: %s\n", joinInts(st.AllowedPorts))
				}
				return nil
			})
		},
	})

	toggle := func(use, short, done string, fn func(firewall.Firewall, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					if err := fn(a.firewall, ctx); err != nil {
						return err
					}
					fmt.Println(done)
					return nil
				})
			},
		}
	}
	firewallCmd.AddCommand(
		toggle("enable", "Enable the firewall", "Firewall enabled.", firewall.Firewall.Enable),
		toggle("disable", "Disable the firewall", "Firewall disabled.", firewall.Firewall.Disable),
	)

	port := func(use, short, done string, fn func(firewall.Firewall, context.Context, int) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <port>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid port %q: %w", args[0], err)
				}
				return withApp(func(ctx context.Context, a *app) error {
					if err := fn(a.firewall, ctx, p); err != nil {
						return err
					}
					fmt.Printf(done+"\n", p)
					return nil
				})
			},
		}
	}
	firewallCmd.AddCommand(
		port("allow", "Open a port", "Port %d allowed.", firewall.Firewall.Allow),
		port("deny", "Close a port", "Port %d closed.", firewall.Firewall.Deny),
	)

	rootCmd.AddCommand(firewallCmd)
}
