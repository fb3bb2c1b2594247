package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wangicheng/orange-juice/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task's current status, progress, and result",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var pauseCmd = &cobra.Command{
	Use:   "pause <task-id>",
	Short: "Request that a pending or in-progress task pause",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Resume a failed or paused task",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var resp api.TaskResponse
	if err := apiCall("GET", "/tasks/"+args[0], nil, &resp); err != nil {
		return err
	}
	return printJSON(resp)
}

func runPause(cmd *cobra.Command, args []string) error {
	if err := apiCall("POST", "/tasks/"+args[0]+"/pause", nil, nil); err != nil {
		return err
	}
	fmt.Printf("task %s: pause requested\n", args[0])
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	if err := apiCall("POST", "/tasks/"+args[0]+"/resume", nil, nil); err != nil {
		return err
	}
	fmt.Printf("task %s: resumed\n", args[0])
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
