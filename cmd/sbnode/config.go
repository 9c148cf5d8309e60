package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/creamcroissant/sbnode/internal/service"
)

func init() {
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "sing-box configuration commands",
	}

	// config create
	var req service.CreateRequest
	var createCmd = &cobra.Command{
		Use:   "create",
		Short: "Generate a fresh VLESS-Reality + Hysteria2 configuration",
		Long: `Generate Reality keys, a self-signed certificate and a first user, write
config.json and keys.json, open both ports and restart sing-box.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if req.Username == "" && !assumeYes {
					name, err := promptText("First username", "")
					if err != nil {
						return err
					}
					req.Username = name
				}
				res, err := a.manager.CreateConfig(ctx, req)
				if err != nil {
					return err
				}
				printResult(os.Stdout, res)
				return nil
			})
		},
	}
	createCmd.Flags().StringVarP(&req.Username, "user", "u", "", "First username")
	createCmd.Flags().StringVar(&req.Label, "label", "", "Display label for the first user")
	createCmd.Flags().IntVar(&req.VLESSPort, "vless-port", 0, "VLESS-Reality listen port (default from settings)")
	createCmd.Flags().IntVar(&req.Hysteria2Port, "hy2-port", 0, "Hysteria2 listen port (default from settings)")
	createCmd.Flags().StringVar(&req.ServerName, "server-name", "", "Reality handshake server / SNI (default from settings)")
	configCmd.AddCommand(createCmd)

	rootCmd.AddCommand(configCmd)
}
