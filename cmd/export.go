package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/export"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
)

var (
	exportFormat string
	exportOut    string
	exportFrom   string
	exportTo     string
	exportStaff  string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export activity records as XLSX or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter, err := exportFilter()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "export")
		if err != nil {
			return err
		}
		defer env.Close()

		if exportStaff != "" {
			filter.StaffID, err = staffIDForCode(ctx, env.Store, exportStaff)
			if err != nil {
				return err
			}
		}

		recs, err := env.Store.ListActivities(ctx, filter)
		if err != nil {
			return err
		}
		staff, err := env.Store.ListStaff(ctx)
		if err != nil {
			return err
		}
		names := make(map[string]string, len(staff))
		for _, s := range staff {
			names[s.ID] = s.Name
		}

		out := cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if err := export.Write(out, exportFormat, recs, names); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("format", exportFormat),
			zap.Int("records", len(recs)),
			zap.String("out", exportOut),
		)
		return nil
	},
}

// exportFilter builds the listing filter from the command flags.
func exportFilter() (store.ActivityFilter, error) {
	f := store.ActivityFilter{Status: exportStatus, Limit: 10000}
	if exportFrom != "" {
		d, err := model.ParseDate(exportFrom)
		if err != nil {
			return f, eris.Wrap(err, "--from")
		}
		f.DateFrom = &d
	}
	if exportTo != "" {
		d, err := model.ParseDate(exportTo)
		if err != nil {
			return f, eris.Wrap(err, "--to")
		}
		f.DateTo = &d
	}
	return f, nil
}

func staffIDForCode(ctx context.Context, st store.Store, code string) (string, error) {
	staff, err := st.ListStaff(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range staff {
		if s.Code == code {
			return s.ID, nil
		}
	}
	return "", eris.Errorf("unknown staff code %q", code)
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatXLSX, "output format: xlsx or csv")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first activity date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last activity date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportStaff, "staff", "", "staff code to export")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "record status")
	rootCmd.AddCommand(exportCmd)
}
