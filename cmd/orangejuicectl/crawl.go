package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	crawlProblemID string
	crawlSourceID  int64
	crawlHeader    string
	crawlFooter    string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Start a crawl-testcases task for a problem",
	Args:  cobra.NoArgs,
	RunE:  runCrawl,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlProblemID, "problem", "", "OJ problem display id (required)")
	crawlCmd.Flags().Int64Var(&crawlSourceID, "source", 0, "code template set id (required)")
	crawlCmd.Flags().StringVar(&crawlHeader, "header", "", "header code wrapped around every submission")
	crawlCmd.Flags().StringVar(&crawlFooter, "footer", "", "footer code wrapped around every submission")
	_ = crawlCmd.MarkFlagRequired("problem")
	_ = crawlCmd.MarkFlagRequired("source")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	req := map[string]any{
		"oj_problem_id":     crawlProblemID,
		"crawler_source_id": crawlSourceID,
		"header_code":       crawlHeader,
		"footer_code":       crawlFooter,
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := apiCall("POST", "/tasks/crawl-testcases", req, &resp); err != nil {
		return err
	}
	fmt.Printf("task %s started\n", resp.TaskID)
	return nil
}
