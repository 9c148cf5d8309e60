package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/creamcroissant/sbnode/internal/linkgen"
)

func init() {
	// link inspect <uri>
	var linkCmd = &cobra.Command{
		Use:   "link",
		Short: "Share link helpers",
	}
	linkCmd.AddCommand(&cobra.Command{
		Use:   "inspect <uri>",
		Short: "Decode a vless:// or hysteria2:// link into its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := linkgen.Parse(args[0])
			if err != nil {
				return err
			}
			return printYAML(link)
		},
	})
	rootCmd.AddCommand(linkCmd)

	// state
	rootCmd.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Show sing-box installation and service state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				st, err := a.manager.State(ctx)
				if err != nil {
					return err
				}
				return printYAML(st)
			})
		},
	})

	// settings
	rootCmd.AddCommand(&cobra.Command{
		Use:   "settings",
		Short: "Print the effective sbnode settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printYAML(cfg)
		},
	})

	// version
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sbnode %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	})
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
