package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/wrangler/internal/history"
	"github.com/verte-zerg/wrangler/internal/model"
	"github.com/verte-zerg/wrangler/internal/session"
)

var (
	historyTask  int64
	historyLimit int
	historySince string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().Int64Var(&historyTask, "task", 0, "only sessions tracked against this task")
	cmd.Flags().IntVar(&historyLimit, "limit", session.DefaultRecentLimit, "maximum sessions to show (0 for all)")
	cmd.Flags().StringVar(&historySince, "since", "", "start date, e.g. 2026-01-31, yesterday, last week")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	now := time.Now()
	filter := model.HistoryFilter{Limit: historyLimit}
	if historyLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	if historyTask != 0 {
		id := historyTask
		filter.TaskID = &id
	}
	if historySince != "" {
		since, err := history.ParseSince(historySince, now)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &since
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.sessions.History(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	titles := map[int64]string{}
	list, err := a.tasks.List(cmd.Context(), nil)
	if err != nil {
		logErrf("failed to load task titles: %v\n", err)
	}
	for _, t := range list {
		titles[t.ID] = t.Title
	}
	return history.WriteSessions(cmd.OutOrStdout(), sessions, titles, history.Options{Now: now, Width: history.TerminalWidth()})
}

func newInterruptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interruptions <session>",
		Short: "List the interruptions logged during a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runInterruptionsCmd,
	}
}

func runInterruptionsCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID("session", args[0])
	if err != nil {
		return err
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.sessions.Get(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	list, err := a.sessions.Interruptions(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to list interruptions: %w", err)
	}
	return history.WriteInterruptions(cmd.OutOrStdout(), list, history.Options{Width: history.TerminalWidth()})
}
