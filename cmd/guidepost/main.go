// Guidepost
//
// A review roadmap generator for pull requests.
// Point it at a PR, get a guided tour of the diff.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "guidepost",
	Short: "Guidepost - PR review roadmaps",
	Long: `Guidepost generates review roadmaps for pull requests.
Point it at a PR, get a guided tour of the diff.

  guidepost serve                       Start the server
  guidepost run owner/repo 41           Generate a roadmap for PR #41
  guidepost list                        List runs
  guidepost status <id>                 Check run status
  guidepost roadmap <id>                Print a finished roadmap
  guidepost logs <id> --follow          Stream run events`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("GUIDEPOST_SERVER", "http://localhost:7080"), "Guidepost server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
