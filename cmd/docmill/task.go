package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/docmill/docmill/pkg/client"
	"github.com/docmill/docmill/pkg/types"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage conversion tasks",
}

func init() {
	taskCmd.PersistentFlags().String("server", "http://localhost:8000", "Docmill API address")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskRetryCmd)
	taskCmd.AddCommand(taskRetryFailedCmd)
	taskCmd.AddCommand(taskSetTypeCmd)
	rootCmd.AddCommand(taskCmd)
}

// apiClient builds a REST client from the command's --server flag.
func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server)
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a conversion task",
	Long: `Create a document conversion task.

The input is either an object in the configured S3 store (--bucket with
--file) or a path on a volume shared with the service (--local-path).
Batch task types take a directory as --local-path and convert every
matching file in it.

Examples:
  # Convert an uploaded Word document to PDF
  docmill task create --type office_to_pdf --bucket uploads --file reports/q3.docx

  # Convert a PDF already on the shared volume, at high priority
  docmill task create --type pdf_to_markdown --local-path /data/in/q3.pdf --priority high

  # Convert a directory of PDFs, passing conversion parameters as JSON
  docmill task create --type batch_pdf_to_markdown --local-path /data/in \
    --params '{"file_pattern": "\\.pdf$", "force_reprocess": true}'`,
	RunE: runTaskCreate,
}

func init() {
	taskCreateCmd.Flags().String("type", "", "Task type (office_to_pdf, pdf_to_markdown, ...)")
	taskCreateCmd.Flags().String("priority", "normal", "Task priority (high, normal, low)")
	taskCreateCmd.Flags().String("bucket", "", "Source S3 bucket")
	taskCreateCmd.Flags().String("file", "", "Source object key in --bucket")
	taskCreateCmd.Flags().String("local-path", "", "Source path on a shared volume")
	taskCreateCmd.Flags().String("output", "", "Output path override")
	taskCreateCmd.Flags().String("platform", "", "Originating platform tag")
	taskCreateCmd.Flags().String("callback", "", "URL notified when the task finishes")
	taskCreateCmd.Flags().String("params", "", "Conversion parameters as a JSON object")
	_ = taskCreateCmd.MarkFlagRequired("type")
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	taskType, _ := cmd.Flags().GetString("type")
	priority, _ := cmd.Flags().GetString("priority")
	bucket, _ := cmd.Flags().GetString("bucket")
	filePath, _ := cmd.Flags().GetString("file")
	localPath, _ := cmd.Flags().GetString("local-path")
	outputPath, _ := cmd.Flags().GetString("output")
	platform, _ := cmd.Flags().GetString("platform")
	callback, _ := cmd.Flags().GetString("callback")
	rawParams, _ := cmd.Flags().GetString("params")

	req := &types.CreateTaskRequest{
		TaskType:    types.TaskType(taskType),
		Priority:    types.TaskPriority(priority),
		BucketName:  bucket,
		FilePath:    filePath,
		LocalPath:   localPath,
		OutputPath:  outputPath,
		Platform:    platform,
		CallbackURL: callback,
	}
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &req.Params); err != nil {
			return fmt.Errorf("--params must be a JSON object: %v", err)
		}
	}

	action, err := apiClient(cmd).CreateTask(req)
	if err != nil {
		return fmt.Errorf("failed to create task: %v", err)
	}

	fmt.Printf("✓ Task created: %d (status: %s)\n", action.TaskID, action.Status)
	return nil
}

var taskGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		task, err := apiClient(cmd).GetTask(id)
		if err != nil {
			return fmt.Errorf("failed to get task: %v", err)
		}

		printTask(task)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")
		taskType, _ := cmd.Flags().GetString("type")
		platform, _ := cmd.Flags().GetString("platform")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		list, err := apiClient(cmd).ListTasks(client.ListOptions{
			Status:   types.TaskStatus(status),
			Priority: types.TaskPriority(priority),
			TaskType: types.TaskType(taskType),
			Platform: platform,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			return fmt.Errorf("failed to list tasks: %v", err)
		}

		if len(list.Tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		fmt.Printf("%-8s %-24s %-12s %-8s %-20s %s\n",
			"ID", "TYPE", "STATUS", "PRIORITY", "CREATED", "FILE")
		for _, t := range list.Tasks {
			name := t.FileName
			if name == "" {
				name = t.FilePath
			}
			if name == "" {
				name = t.LocalPath
			}
			fmt.Printf("%-8d %-24s %-12s %-8s %-20s %s\n",
				t.ID, t.TaskType, t.Status, t.Priority,
				t.CreatedAt.Format("2006-01-02 15:04:05"), name)
		}
		return nil
	},
}

func init() {
	taskListCmd.Flags().String("status", "", "Filter by status (pending, processing, completed, failed, cancelled)")
	taskListCmd.Flags().String("priority", "", "Filter by priority")
	taskListCmd.Flags().String("type", "", "Filter by task type")
	taskListCmd.Flags().String("platform", "", "Filter by platform tag")
	taskListCmd.Flags().Int("limit", 0, "Page size")
	taskListCmd.Flags().Int("offset", 0, "Page offset")
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry ID",
	Short: "Queue a failed or cancelled task for another attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		action, err := apiClient(cmd).RetryTask(id)
		if err != nil {
			return fmt.Errorf("failed to retry task: %v", err)
		}

		fmt.Printf("✓ %s\n", action.Message)
		return nil
	},
}

var taskRetryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Queue every failed task for another attempt",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient(cmd).RetryFailed()
		if err != nil {
			return fmt.Errorf("failed to retry tasks: %v", err)
		}

		fmt.Printf("✓ %s\n", result.Message)
		for _, id := range result.RetriedTaskIDs {
			fmt.Printf("  Task %d\n", id)
		}
		return nil
	},
}

var taskSetTypeCmd = &cobra.Command{
	Use:   "set-type ID TYPE",
	Short: "Change the task type of a failed task",
	Long: `Change the task type of a failed task before retrying it, for
example to image_to_markdown when a PDF turned out to be a scan with no
text layer.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		action, err := apiClient(cmd).UpdateTaskType(id, types.TaskType(args[1]))
		if err != nil {
			return fmt.Errorf("failed to update task type: %v", err)
		}

		fmt.Printf("✓ %s\n", action.Message)
		return nil
	},
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func printTask(t *types.Task) {
	fmt.Printf("Task %d\n", t.ID)
	fmt.Printf("  Type: %s\n", t.TaskType)
	fmt.Printf("  Status: %s\n", t.Status)
	fmt.Printf("  Priority: %s\n", t.Priority)
	if t.BucketName != "" {
		fmt.Printf("  Source: s3://%s/%s\n", t.BucketName, t.FilePath)
	}
	if t.LocalPath != "" {
		fmt.Printf("  Source: %s\n", t.LocalPath)
	}
	if t.FileName != "" {
		fmt.Printf("  File: %s (%d bytes)\n", t.FileName, t.FileSizeBytes)
	}
	if t.Platform != "" {
		fmt.Printf("  Platform: %s\n", t.Platform)
	}
	fmt.Printf("  Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.StartedAt != nil {
		fmt.Printf("  Started: %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if t.RetryCount > 0 {
		fmt.Printf("  Retries: %d/%d\n", t.RetryCount, t.MaxRetryCount)
	}
	if t.EngineName != "" {
		fmt.Printf("  Engine: %s\n", t.EngineName)
	}
	if t.TaskProcessingTime != nil {
		fmt.Printf("  Processing Time: %.2fs\n", *t.TaskProcessingTime)
	}
	for _, u := range t.S3URLs {
		fmt.Printf("  Artifact: %s\n", u)
	}
	if t.ErrorMessage != nil {
		fmt.Printf("  Error: %s\n", *t.ErrorMessage)
	}
}
