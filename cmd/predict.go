package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/YDUTSEVOLDN/Subway/app"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
	"github.com/YDUTSEVOLDN/Subway/pkg/export"
)

type predictFlags struct {
	start, end string
	stations   []string
	format     string
	out        string
	store      bool
}

var pf predictFlags

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast a date window and print the results",
	Example: "  subway predict --start 2025-07-01 --end 2025-07-07 --station Xidan --format csv\n" +
		"  subway predict --start 2025-07-01 --end 2025-07-07 --store",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := model.ParseDate(pf.start)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		end, err := model.ParseDate(pf.end)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		write, err := writerFor(pf.format)
		if err != nil {
			return err
		}
		return withService(pf.store, func(ctx context.Context, svc *app.Service) error {
			ctx = pipeline.WithTrigger(ctx, "cli")
			var res []model.PredictionResult
			if pf.store {
				rep, err := svc.Pipeline.RunAndStore(ctx, start, end, pf.stations)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "batch %s: %d predictions, %d stored\n", rep.BatchID, len(rep.Predictions), rep.Stored)
				res = rep.Predictions
			} else if res, err = svc.Pipeline.RunBatch(ctx, start, end, pf.stations); err != nil {
				return err
			}
			return writeTo(pf.out, cmd.OutOrStdout(), func(w io.Writer) error { return write(w, res) })
		})
	},
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&pf.start, "start", "", "first date of the window (YYYY-MM-DD)")
	f.StringVar(&pf.end, "end", "", "last date of the window (YYYY-MM-DD)")
	f.StringSliceVar(&pf.stations, "station", nil, "station to forecast, repeatable (default all)")
	f.StringVar(&pf.format, "format", "json", "output format: json, csv or html")
	f.StringVarP(&pf.out, "out", "o", "", "write to file instead of stdout")
	f.BoolVar(&pf.store, "store", false, "persist, publish and log the batch")
	_ = predictCmd.MarkFlagRequired("start")
	_ = predictCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(predictCmd)
}

func writerFor(format string) (func(io.Writer, []model.PredictionResult) error, error) {
	switch format {
	case "json":
		return export.WriteJSON, nil
	case "csv":
		return export.WriteCSV, nil
	case "html":
		return export.WriteHTML, nil
	default:
		return nil, fmt.Errorf("--format: unsupported %q (json, csv or html)", format)
	}
}

func writeTo(path string, stdout io.Writer, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
