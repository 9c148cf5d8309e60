package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	var serviceCmd = &cobra.Command{
		Use:   "service",
		Short: "Control the sing-box service",
	}

	simple := func(use, short, done string, fn func(serviceControl, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					if err := fn(a.svc, ctx); err != nil {
						return err
					}
					fmt.Println(done)
					return nil
				})
			},
		}
	}
	serviceCmd.AddCommand(
		simple("start", "Start sing-box", "Service started.", serviceControl.Start),
		simple("stop", "Stop sing-box", "Service stopped.", serviceControl.Stop),
		simple("restart", "Restart sing-box", "Service restarted.", serviceControl.Restart),
	)

	// service status
	serviceCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether sing-box is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				active, err := a.svc.Status(ctx)
				if err != nil {
					return err
				}
				if active {
					fmt.Printf("%s is running\n", a.cfg.Service.Name)
				} else {
					fmt.Printf("%s is not running\n", a.cfg.Service.Name)
				}
				return nil
			})
		},
	})

	// service logs [-n N] [-f]
	var lines int
	var follow bool
	var logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Show sing-box logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.svc.Logs(ctx, lines, follow, os.Stdout)
			})
		},
	}
	logsCmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines")
	serviceCmd.AddCommand(logsCmd)

	rootCmd.AddCommand(serviceCmd)
}
