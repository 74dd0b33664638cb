package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YDUTSEVOLDN/Subway/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the forecast schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(true, func(ctx context.Context, svc *app.Service) error {
			return svc.Run(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
