package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newTriggerCommand(opts *Options) *cobra.Command {
	var serverAddr string
	var strategy string

	cmd := &cobra.Command{
		Use:   "trigger <repo-id>",
		Short: "Enqueue a manual review task through a running engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoID := args[0]

			payload, err := json.Marshal(map[string]string{"strategy": strategy})
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}

			url := fmt.Sprintf("%s/polling/repos/%s/trigger", serverAddr, repoID)
			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("call engine at %s: %w", serverAddr, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("engine returned HTTP %d: %s", resp.StatusCode, string(body))
			}

			if opts.JSONOutput || !term.IsTerminal(int(os.Stdout.Fd())) {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}

			var result struct {
				Status string `json:"status"`
				TaskID string `json:"task_id"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			switch result.Status {
			case "queued":
				fmt.Fprintf(cmd.OutOrStdout(), "queued task %s for %s (%s)\n", result.TaskID, repoID, strategy)
			case "duplicate":
				fmt.Fprintf(cmd.OutOrStdout(), "a review for this revision of %s is already pending\n", repoID)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", "http://localhost:8844", "base URL of the running engine")
	cmd.Flags().StringVar(&strategy, "strategy", "commit", "review strategy: commit or merge_request")

	return cmd
}
