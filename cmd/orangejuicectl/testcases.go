package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testcasesCmd = &cobra.Command{
	Use:   "testcases <problem-id>",
	Short: "List test cases discovered for a problem",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestcases,
}

func runTestcases(cmd *cobra.Command, args []string) error {
	var resp struct {
		Testcases []struct {
			ID        int64  `json:"ID"`
			ProblemID int64  `json:"ProblemID"`
			Content   string `json:"Content"`
			CreatedAt string `json:"CreatedAt"`
		} `json:"testcases"`
	}
	if err := apiCall("GET", "/problems/"+args[0]+"/testcases", nil, &resp); err != nil {
		return err
	}
	for _, tc := range resp.Testcases {
		fmt.Printf("%d\t%q\n", tc.ID, tc.Content)
	}
	fmt.Printf("%d test case(s)\n", len(resp.Testcases))
	return nil
}
