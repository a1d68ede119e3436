package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

var apiAddr string

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect and reset circuit breakers on a running engine",
}

var breakerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List circuit breakers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var snaps []breaker.Snapshot
		if err := newAPIClient().do(cmd.Context(), http.MethodGet, "/breakers", &snaps); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "SCOPE\tSTATE\tFAILURES\tTHRESHOLD\tOPENED")
		for _, s := range snaps {
			opened := "-"
			if !s.OpenedAt.IsZero() {
				opened = s.OpenedAt.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.Scope, s.State, s.FailureCount, s.Threshold, opened)
		}
		return w.Flush()
	},
}

var breakerResetCmd = &cobra.Command{
	Use:   "reset [scope]",
	Short: "Force a circuit breaker closed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/breakers/" + url.PathEscape(args[0]) + "/reset"
		if err := newAPIClient().do(cmd.Context(), http.MethodPost, path, nil); err != nil {
			return err
		}
		fmt.Printf("Circuit breaker %s reset\n", args[0])
		return nil
	},
}

var taskStatusFilter string

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect, resume and cancel tasks on a running engine",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/tasks"
		if taskStatusFilter != "" {
			path += "?status=" + url.QueryEscape(taskStatusFilter)
		}
		var tasks []driver.TaskInfo
		if err := newAPIClient().do(cmd.Context(), http.MethodGet, path, &tasks); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "ID\tAGENT\tTYPE\tSTATUS\tATTEMPTS\tBLOCKED BY\tERROR")
		for _, t := range tasks {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				t.Task.ID, t.Task.AgentType, t.Task.TaskType, t.Status, t.Attempts, t.BlockedBy, t.Error)
		}
		return w.Flush()
	},
}

var taskResumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused task and unblock its dependents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAction(cmd, args[0], "resume")
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAction(cmd, args[0], "cancel")
	},
}

func init() {
	breakerCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "operator API address (default http://localhost:<server.port>)")
	taskCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "operator API address (default http://localhost:<server.port>)")
	taskListCmd.Flags().StringVar(&taskStatusFilter, "status", "", "only tasks in this status")

	breakerCmd.AddCommand(breakerListCmd, breakerResetCmd)
	taskCmd.AddCommand(taskListCmd, taskResumeCmd, taskCancelCmd)
	rootCmd.AddCommand(breakerCmd, taskCmd)
}

func taskAction(cmd *cobra.Command, id, action string) error {
	path := "/tasks/" + url.PathEscape(id) + "/" + action
	var resp struct {
		Task   string `json:"task"`
		Result string `json:"result"`
	}
	if err := newAPIClient().do(cmd.Context(), http.MethodPost, path, &resp); err != nil {
		return err
	}
	fmt.Printf("Task %s %s\n", resp.Task, resp.Result)
	return nil
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	base := apiAddr
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", appCfg.Server.Port)
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends a request and decodes the JSON body into out when non-nil.
// Non-2xx responses become errors carrying the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach operator API: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
