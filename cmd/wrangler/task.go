package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/wrangler/internal/history"
	"github.com/verte-zerg/wrangler/internal/model"
	"github.com/verte-zerg/wrangler/internal/tasks"
)

var (
	taskNotes      string
	taskEffort     string
	taskEstimate   int
	taskAddStatus  string
	taskListStatus string
	taskClearNow   bool
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task board",
	}

	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTaskAddCmd,
	}
	addCmd.Flags().StringVar(&taskNotes, "notes", "", "free-form notes")
	addCmd.Flags().StringVar(&taskEffort, "effort", "", "effort: low, medium or high")
	addCmd.Flags().IntVar(&taskEstimate, "estimate", 0, "estimated pomodoros")
	addCmd.Flags().StringVar(&taskAddStatus, "status", string(model.Inbox), "initial status: inbox, today, doing or done")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE:  runTaskListCmd,
	}
	listCmd.Flags().StringVar(&taskListStatus, "status", "", "only show tasks with this status")

	nowCmd := &cobra.Command{
		Use:   "now [id]",
		Short: "Show or select the task focus sessions track",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTaskNowCmd,
	}
	nowCmd.Flags().BoolVar(&taskClearNow, "clear", false, "clear the now task")

	cmd.AddCommand(addCmd, listCmd, nowCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE:  runTaskMoveCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskDoneCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskRmCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "split <id>",
		Short: "Split a task into start, continue and finish parts",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskSplitCmd,
	})
	return cmd
}

func runTaskAddCmd(cmd *cobra.Command, args []string) error {
	status, err := model.ParseTaskStatus(taskAddStatus)
	if err != nil {
		return err
	}
	effort, err := model.ParseTaskEffort(taskEffort)
	if err != nil {
		return err
	}
	if taskEstimate < 0 {
		return fmt.Errorf("--estimate must be >= 0")
	}
	draft := tasks.Draft{
		Title:  strings.Join(args, " "),
		Notes:  taskNotes,
		Effort: effort,
	}
	if taskEstimate > 0 {
		est := taskEstimate
		draft.EstimatedPomodoros = &est
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.tasks.Create(cmd.Context(), draft, status)
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s\n", task.ID, task.Title)
	return err
}

func runTaskListCmd(cmd *cobra.Command, _ []string) error {
	var filter *model.TaskStatus
	if taskListStatus != "" {
		status, err := model.ParseTaskStatus(taskListStatus)
		if err != nil {
			return err
		}
		filter = &status
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.tasks.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	var nowID *int64
	now, err := a.tasks.Now(cmd.Context())
	if err != nil {
		logErrf("failed to load now task: %v\n", err)
	}
	if now != nil {
		nowID = &now.ID
	}
	return history.WriteTasks(cmd.OutOrStdout(), list, nowID, history.Options{Width: history.TerminalWidth()})
}

func runTaskMoveCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID("task", args[0])
	if err != nil {
		return err
	}
	status, err := model.ParseTaskStatus(args[1])
	if err != nil {
		return err
	}
	return withTasks(cmd, func(svc *tasks.Service) error {
		if err := svc.ChangeStatus(cmd.Context(), id, status); err != nil {
			return fmt.Errorf("failed to move task: %w", err)
		}
		return nil
	})
}

func runTaskDoneCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID("task", args[0])
	if err != nil {
		return err
	}
	return withTasks(cmd, func(svc *tasks.Service) error {
		if err := svc.MarkDone(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to complete task: %w", err)
		}
		return nil
	})
}

func runTaskRmCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID("task", args[0])
	if err != nil {
		return err
	}
	return withTasks(cmd, func(svc *tasks.Service) error {
		if err := svc.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		return nil
	})
}

func runTaskSplitCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID("task", args[0])
	if err != nil {
		return err
	}
	return withTasks(cmd, func(svc *tasks.Service) error {
		parts, err := svc.Split(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to split task: %w", err)
		}
		for _, p := range parts {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s\n", p.ID, p.Title); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		return nil
	})
}

func runTaskNowCmd(cmd *cobra.Command, args []string) error {
	if taskClearNow && len(args) > 0 {
		return fmt.Errorf("--clear takes no task id")
	}
	return withTasks(cmd, func(svc *tasks.Service) error {
		switch {
		case taskClearNow:
			if err := svc.SetNow(cmd.Context(), nil); err != nil {
				return fmt.Errorf("failed to clear now task: %w", err)
			}
			return nil
		case len(args) == 1:
			id, err := parseID("task", args[0])
			if err != nil {
				return err
			}
			if err := svc.SetNow(cmd.Context(), &id); err != nil {
				return fmt.Errorf("failed to set now task: %w", err)
			}
			return nil
		}
		now, err := svc.Now(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load now task: %w", err)
		}
		if now == nil {
			logErrln("No now task. Pick one with: wrangler task now <id>")
			return nil
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "#%d %s (%s)\n", now.ID, now.Title, now.Status)
		return err
	})
}

func withTasks(cmd *cobra.Command, fn func(*tasks.Service) error) error {
	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.tasks)
}

func parseID(what, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(value), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, value)
	}
	return id, nil
}
