package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/grievance-portal/internal/app"
	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/service"
)

var (
	employeeName  string
	employeeEmail string
	employeeRole  string
)

var employeeCmd = &cobra.Command{
	Use:   "employee",
	Short: "Manage portal accounts",
}

var employeeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an employee account; the password is read from PORTAL_PASSWORD",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password := os.Getenv("PORTAL_PASSWORD")
		if password == "" {
			return errors.New("PORTAL_PASSWORD must be set")
		}
		return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
			employee, err := svc.Auth.RegisterEmployee(ctx, service.RegisterEmployeeInput{
				Name:     employeeName,
				Email:    employeeEmail,
				Password: password,
				Role:     domain.EmployeeRole(employeeRole),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":    employee.ID,
				"name":  employee.Name,
				"email": employee.Email,
				"role":  employee.Role,
			})
		})
	},
}

func init() {
	employeeCreateCmd.Flags().StringVar(&employeeName, "name", "", "display name")
	employeeCreateCmd.Flags().StringVar(&employeeEmail, "email", "", "login email")
	employeeCreateCmd.Flags().StringVar(&employeeRole, "role", string(domain.EmployeeRoleEmployee), "EMPLOYEE, AGENT, MANAGER or ADMIN")
	_ = employeeCreateCmd.MarkFlagRequired("name")
	_ = employeeCreateCmd.MarkFlagRequired("email")
	employeeCmd.AddCommand(employeeCreateCmd)
}
