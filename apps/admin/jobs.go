package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/payroll"
	"github.com/avsnarang/scholarise/core/school"
)

func (cli *commandLine) leaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leave",
		Short: "Leave management jobs",
	}

	var (
		schoolCode string
		year       int
	)
	initCmd := &cobra.Command{
		Use:   "init-balances",
		Short: "Create the missing leave balances of a year, carrying unused days forward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := cli.schoolByCode(cmd, schoolCode)
			if err != nil {
				return err
			}
			n, err := cli.leaveSvc.InitializeBalances(cmd.Context(), sch.ID, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d balances created for %d\n", sch.Code, n, year)
			return nil
		},
	}
	initCmd.Flags().StringVar(&schoolCode, "school", "", "school code")
	initCmd.Flags().IntVar(&year, "year", time.Now().Year(), "leave year")
	_ = initCmd.MarkFlagRequired("school")

	cmd.AddCommand(initCmd)
	return cmd
}

func (cli *commandLine) payrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payroll",
		Short: "Payroll jobs",
	}

	var (
		schoolCode string
		period     payroll.Period
	)
	now := time.Now()
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the draft payslips of a month; paid slips are left untouched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.validate.Struct(&period); err != nil {
				return err
			}
			sch, err := cli.schoolByCode(cmd, schoolCode)
			if err != nil {
				return err
			}
			res, err := cli.payrollSvc.Generate(cmd.Context(), sch.ID, period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %04d-%02d: %d payslips generated, %d paid skipped\n",
				sch.Code, period.Year, period.Month, len(res.Generated), res.Skipped)
			return nil
		},
	}
	genCmd.Flags().StringVar(&schoolCode, "school", "", "school code")
	genCmd.Flags().IntVar(&period.Year, "year", now.Year(), "payroll year")
	genCmd.Flags().IntVar(&period.Month, "month", int(now.Month()), "payroll month (1-12)")
	_ = genCmd.MarkFlagRequired("school")

	cmd.AddCommand(genCmd)
	return cmd
}

func (cli *commandLine) admissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admissions",
		Short: "Admission jobs",
	}

	var schoolCode string
	expireCmd := &cobra.Command{
		Use:   "expire-offers",
		Short: "Expire the pending offers past their expiry date",
		Long:  "Expire the pending offers past their expiry date, in one school or in every active school.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var schools []school.School
			if schoolCode != "" {
				sch, err := cli.schoolByCode(cmd, schoolCode)
				if err != nil {
					return err
				}
				schools = append(schools, sch)
			} else {
				active := true
				var err error
				if schools, err = cli.schSvc.Query(ctx, &school.QueryFilter{IsActive: &active}, nil); err != nil {
					return err
				}
			}

			today := core.Today()
			for _, sch := range schools {
				n, err := cli.admSvc.ExpireOffers(ctx, sch.ID, today)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d offers expired\n", sch.Code, n)
			}
			return nil
		},
	}
	expireCmd.Flags().StringVar(&schoolCode, "school", "", "school code (all active schools when empty)")

	cmd.AddCommand(expireCmd)
	return cmd
}
