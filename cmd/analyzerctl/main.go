// Command analyzerctl is a thin CLI over the orchestrator's HTTP API. It
// holds no orchestration logic; every subcommand maps to one endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:   "analyzerctl",
		Short: "Submit and inspect analysis tasks",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "orchestrator API base URL")

	root.AddCommand(taskCmd(), pipelineCmd(), workersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage analysis tasks"}

	var priority int
	create := &cobra.Command{
		Use:   "create <app> <revision> <capability,...>",
		Short: "Create an analysis task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"target_app":      args[0],
				"target_revision": args[1],
				"capability_set":  strings.Split(args[2], ","),
				"priority":        priority,
			}
			return call(http.MethodPost, "/api/v1/tasks", body)
		},
	}
	create.Flags().IntVar(&priority, "priority", 0, "task priority")

	status := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's status summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/v1/tasks/"+args[0], nil)
		},
	}
	result := &cobra.Command{
		Use:   "result <task-id>",
		Short: "Fetch a task's consolidated result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/v1/tasks/"+args[0]+"/result", nil)
		},
	}
	manifest := &cobra.Command{
		Use:   "manifest <task-id>",
		Short: "Fetch a task's result manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/v1/tasks/"+args[0]+"/manifest", nil)
		},
	}
	cancel := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodPost, "/api/v1/tasks/"+args[0]+"/cancel", nil)
		},
	}
	cmd.AddCommand(create, status, result, manifest, cancel)
	return cmd
}

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pipeline", Short: "Manage pipeline runs"}

	start := &cobra.Command{
		Use:   "start <run-def.json>",
		Short: "Start a pipeline run from a JSON definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var def map[string]any
			if err := json.Unmarshal(raw, &def); err != nil {
				return fmt.Errorf("parse run definition: %w", err)
			}
			return call(http.MethodPost, "/api/v1/pipelines", def)
		},
	}
	status := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show a run with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/v1/pipelines/"+args[0], nil)
		},
	}
	cmd.AddCommand(start, status)
	return cmd
}

func workersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List the configured worker fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, "/api/v1/workers", nil)
		},
	}
}

func call(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
