package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/roster"
)

var (
	staffName    string
	staffAliases []string
	staffEmail   string
)

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Manage the staff roster used to attribute chat senders",
}

var staffAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Add or update one staff member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := model.Staff{
			Code:    strings.TrimSpace(args[0]),
			Name:    staffName,
			Aliases: staffAliases,
			Email:   staffEmail,
		}
		if s.Name == "" {
			s.Name = s.Code
		}
		return upsertStaff(cmd, []model.Staff{s})
	},
}

var staffImportCmd = &cobra.Command{
	Use:   "import <roster.yaml>",
	Short: "Import staff from a YAML roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		staff, err := roster.LoadFile(args[0])
		if err != nil {
			return err
		}
		return upsertStaff(cmd, staff)
	},
}

var staffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staff members",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "staff")
		if err != nil {
			return err
		}
		defer env.Close()

		staff, err := env.Store.ListStaff(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tNAME\tALIASES\tEMAIL\tACTIVE")
		for _, s := range staff {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.Code, s.Name, strings.Join(s.Aliases, ", "), s.Email, s.Active)
		}
		return tw.Flush()
	},
}

func upsertStaff(cmd *cobra.Command, staff []model.Staff) error {
	env, err := initEnv(cmd.Context(), "staff")
	if err != nil {
		return err
	}
	defer env.Close()

	n, err := env.Store.UpsertStaff(cmd.Context(), staff)
	if err != nil {
		return err
	}
	zap.L().Info("staff upserted", zap.Int("input", len(staff)), zap.Int64("rows", n))
	fmt.Fprintf(cmd.OutOrStdout(), "%d staff member(s) saved\n", len(staff))
	return nil
}

func init() {
	staffAddCmd.Flags().StringVar(&staffName, "name", "", "display name (default the code)")
	staffAddCmd.Flags().StringSliceVar(&staffAliases, "alias", nil, "chat sender alias, repeatable")
	staffAddCmd.Flags().StringVar(&staffEmail, "email", "", "email address")

	staffCmd.AddCommand(staffAddCmd, staffImportCmd, staffListCmd)
	rootCmd.AddCommand(staffCmd)
}
