// orangejuicectl is an operator CLI for the Task API surface: it starts
// crawl/create-accounts tasks and inspects, pauses, and resumes them.
// Grounded on jhkimqd-chaos-utils/cmd/chaos-runner's single rootCmd +
// per-subcommand-file cobra layout.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "orangejuicectl",
	Short: "Operator CLI for the orange-juice Task API",
	Long: `orangejuicectl talks to a running orangejuiced server over its
Task API surface: starting crawl-testcases and create-accounts tasks,
checking their status, and pausing/resuming them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("ORANGEJUICE_SERVER", "http://localhost:8080"), "orangejuiced base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print request/response details")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(testcasesCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
