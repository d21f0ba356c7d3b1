package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avsnarang/scholarise/core/school"
)

func (cli *commandLine) addSchoolCmd() *cobra.Command {
	var ns school.NewSchool
	cmd := &cobra.Command{
		Use:   "addschool",
		Short: "Register a school (tenant)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ns.Validate(cli.validate); err != nil {
				return err
			}
			sch, err := cli.schSvc.Create(cmd.Context(), ns)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "school %s created: %s\n", sch.Code, sch.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&ns.Name, "name", "", "school name")
	cmd.Flags().StringVar(&ns.Code, "code", "", "short unique code, used in registration numbers")
	cmd.Flags().StringVar(&ns.Address, "address", "", "postal address")
	cmd.Flags().StringVar(&ns.Phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&ns.Email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}
