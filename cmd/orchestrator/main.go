// Command orchestrator runs the agent orchestration pipeline: it accepts
// GitHub issue webhooks and drives each issue through classification,
// workspace provisioning, CLI-driven implementation, and pull request
// creation, recording every transition durably in PostgreSQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "GitHub issue agent orchestration pipeline",
	Long: `orchestrator receives GitHub issue webhooks and drives each issue
through classification, workspace provisioning, CLI-driven implementation,
and pull request creation, with durable PostgreSQL-backed state tracking.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
