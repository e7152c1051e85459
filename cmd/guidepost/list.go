package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all runs",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(serverURL + "/api/runs")
	if err != nil {
		return fmt.Errorf("connecting to server: %w\nIs the server running? Start it with: guidepost serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var runs []struct {
		ID         string `json:"id"`
		Repo       string `json:"repo"`
		PRNumber   int    `json:"pr_number"`
		Status     string `json:"status"`
		CommentURL string `json:"comment_url"`
		CreatedAt  string `json:"created_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPO\tPR\tSTATUS\tCOMMENT")
	for _, r := range runs {
		comment := r.CommentURL
		if comment == "" {
			comment = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t#%d\t%s\t%s\n", r.ID, r.Repo, r.PRNumber, statusIcon(r.Status), comment)
	}
	return w.Flush()
}

func statusIcon(status string) string {
	switch status {
	case "pending":
		return "⏳ pending"
	case "running":
		return "🔄 running"
	case "complete":
		return "✅ complete"
	case "error":
		return "❌ error"
	default:
		return status
	}
}
