package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"talent-source/internal/app"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage back-office accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminEmail == "" || adminPassword == "" {
			return errors.New("--email and --password are required")
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			admin, err := a.Auth.CreateAdmin(cmd.Context(), adminName, adminEmail, adminPassword)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", admin.ID, admin.Email)
			return nil
		})
	},
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "display name")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "initial password")
	adminCmd.AddCommand(adminCreateCmd)
}
