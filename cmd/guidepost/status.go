package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Get the status of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs [run-id]",
	Short: "View run events",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow event output")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]

	resp, err := http.Get(serverURL + "/api/runs/" + id)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var run struct {
		ID                   string `json:"id"`
		Repo                 string `json:"repo"`
		PRNumber             int    `json:"pr_number"`
		Status               string `json:"status"`
		SkipReflection       bool   `json:"skip_reflection"`
		ReflectionPassed     bool   `json:"reflection_passed"`
		ReflectionIterations int    `json:"reflection_iterations"`
		CommentURL           string `json:"comment_url"`
		Error                string `json:"error"`
		CreatedAt            string `json:"created_at"`
		UpdatedAt            string `json:"updated_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Repo:     %s#%d\n", run.Repo, run.PRNumber)
	fmt.Printf("Status:   %s\n", statusIcon(run.Status))
	fmt.Printf("Created:  %s\n", run.CreatedAt)
	fmt.Printf("Updated:  %s\n", run.UpdatedAt)
	if run.Status == "complete" {
		switch {
		case run.SkipReflection:
			fmt.Printf("Review:   skipped\n")
		case run.ReflectionPassed:
			fmt.Printf("Review:   passed after %d iteration(s)\n", run.ReflectionIterations)
		default:
			fmt.Printf("Review:   accepted as-is after %d iteration(s)\n", run.ReflectionIterations)
		}
	}
	if run.CommentURL != "" {
		fmt.Printf("Comment:  %s\n", run.CommentURL)
	}
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	id := args[0]

	// The event stream for a live run has no natural end, so without
	// --follow only finished runs are shown.
	if !logsFollow {
		resp, err := http.Get(serverURL + "/api/runs/" + id)
		if err != nil {
			return fmt.Errorf("connecting to server: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
		}
		var run struct {
			Status string `json:"status"`
		}
		err = json.NewDecoder(resp.Body).Decode(&run)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if run.Status == "pending" || run.Status == "running" {
			return fmt.Errorf("run %s is still %s, use --follow to stream", id, run.Status)
		}
	}

	return streamEvents(id)
}
