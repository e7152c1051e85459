package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	runSkipReflection bool
	runFollow         bool
)

var runCmd = &cobra.Command{
	Use:   "run [owner/repo] [pr-number]",
	Short: "Generate a review roadmap for a pull request",
	Long: `Create a run that generates a review roadmap for the given pull request.
When the server is configured for it, the finished roadmap is posted as a
comment on the PR.

Example:
  guidepost run myorg/myapp 41
  guidepost run myorg/myapp 41 --follow`,
	Args: cobra.ExactArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runSkipReflection, "skip-reflection", false, "Skip the self-review pass")
	runCmd.Flags().BoolVarP(&runFollow, "follow", "f", false, "Stream run events until the roadmap is ready")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	repo := args[0]
	pr, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid PR number %q", args[1])
	}

	reqPayload := map[string]any{
		"repo": repo,
		"pr":   pr,
	}
	if runSkipReflection {
		reqPayload["skip_reflection"] = true
	}
	body, _ := json.Marshal(reqPayload)

	resp, err := http.Post(serverURL+"/api/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connecting to server: %w\nIs the server running? Start it with: guidepost serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Run %s started for %s#%d\n", result.ID, repo, pr)

	if !runFollow {
		fmt.Printf("Follow progress with: guidepost logs %s --follow\n", result.ID)
		return nil
	}

	fmt.Printf("Streaming events...\n\n")
	return streamEvents(result.ID)
}

func streamEvents(runID string) error {
	req, _ := http.NewRequest("GET", serverURL+"/api/runs/"+runID+"/events", nil)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		var event struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "status":
			fmt.Printf("\033[36m[status]\033[0m %s\n", event.Data)
		case "step":
			fmt.Printf("\033[33m[step]\033[0m %s\n", event.Data)
		case "error":
			// A run emits "error" only when it fails for good.
			fmt.Fprintf(os.Stderr, "\033[31m[error]\033[0m %s\n", event.Data)
			return nil
		case "done":
			if strings.HasPrefix(event.Data, "http") {
				fmt.Printf("\n\033[32m✓ Roadmap posted:\033[0m %s\n", event.Data)
			} else {
				fmt.Printf("\n\033[32m✓ Done:\033[0m %s\n", event.Data)
			}
			fmt.Printf("Print it with: guidepost roadmap %s\n", runID)
			return nil
		}
	}

	return scanner.Err()
}
