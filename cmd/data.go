package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YDUTSEVOLDN/Subway/app"
	"github.com/YDUTSEVOLDN/Subway/pkg/export"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load historical records from a CSV file into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		recs, err := export.ReadRecords(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return withService(false, func(ctx context.Context, svc *app.Service) error {
			n, err := svc.Store.Insert(ctx, recs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records from %s\n", n, args[0])
			return nil
		})
	},
}

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List the stations in the historical dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(false, func(ctx context.Context, svc *app.Service) error {
			st, err := svc.Store.Stations(ctx)
			if err != nil {
				return err
			}
			for _, s := range st {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name, s.District)
			}
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Describe the historical dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(false, func(ctx context.Context, svc *app.Service) error {
			s, err := svc.Store.Summary(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd, stationsCmd, summaryCmd)
}
