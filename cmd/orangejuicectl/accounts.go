package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountsQuantity int

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Start a create-accounts task",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

func init() {
	accountsCmd.Flags().IntVar(&accountsQuantity, "quantity", 0, "number of accounts to create (required)")
	_ = accountsCmd.MarkFlagRequired("quantity")
}

func runAccounts(cmd *cobra.Command, args []string) error {
	req := map[string]any{"quantity": accountsQuantity}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := apiCall("POST", "/tasks/create-accounts", req, &resp); err != nil {
		return err
	}
	fmt.Printf("task %s started\n", resp.TaskID)
	return nil
}
