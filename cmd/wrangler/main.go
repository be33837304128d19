// Package main provides the CLI entrypoint for wrangler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/wrangler/internal/config"
	"github.com/verte-zerg/wrangler/internal/history"
	"github.com/verte-zerg/wrangler/internal/logging"
	"github.com/verte-zerg/wrangler/internal/model"
	"github.com/verte-zerg/wrangler/internal/notify"
	"github.com/verte-zerg/wrangler/internal/session"
	"github.com/verte-zerg/wrangler/internal/store"
	"github.com/verte-zerg/wrangler/internal/tasks"
	"github.com/verte-zerg/wrangler/internal/timer"
	"github.com/verte-zerg/wrangler/internal/tui"
)

const (
	defaultTickMS      = 250
	defaultExtendShort = 5
	defaultExtendLong  = 10
)

var (
	timerPreset      string
	timerTickMS      int
	timerExtendShort int
	timerExtendLong  int
	timerAutoSwitch  bool
	notifyBell       bool
	notifyMessage    string

	logLevel string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wrangler",
		Short:         "Pomodoro timer with a task board",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTimerCmd,
	}

	rootCmd.Flags().StringVar(&timerPreset, "preset", timer.DefaultPresetID, "timer preset id (see: wrangler presets)")
	rootCmd.Flags().IntVar(&timerTickMS, "tick-ms", defaultTickMS, "countdown refresh interval in milliseconds")
	rootCmd.Flags().IntVar(&timerExtendShort, "extend-short", defaultExtendShort, "minutes added by the short keep-going shortcut")
	rootCmd.Flags().IntVar(&timerExtendLong, "extend-long", defaultExtendLong, "minutes added by the long keep-going shortcut")
	rootCmd.Flags().BoolVar(&timerAutoSwitch, "auto-switch", false, "switch between focus and break when a timer completes")
	rootCmd.Flags().BoolVar(&notifyBell, "bell", false, "ring the terminal bell on completion")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.DefaultLevel, "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newInterruptionsCmd())

	return rootCmd
}

// app holds the services shared by every command.
type app struct {
	store    *store.Store
	log      hclog.Logger
	closeLog func() error
	sessions *session.Recorder
	tasks    *tasks.Service
}

func openApp(cmd *cobra.Command) (*app, config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	logFile := config.DefaultLogPath()
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	if fileCfg.Log.File != nil {
		logFile = *fileCfg.Log.File
	}

	logger, closeLog, err := logging.New(logging.Options{Path: logFile, Level: logLevel})
	if err != nil {
		return nil, config.FileConfig{}, fmt.Errorf("failed to set up logging: %w", err)
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		if cerr := closeLog(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
		return nil, config.FileConfig{}, fmt.Errorf("failed to open db: %w", err)
	}

	state := config.NewStateFile(config.DefaultStatePath())
	a := &app{
		store:    st,
		log:      logger,
		closeLog: closeLog,
		sessions: session.NewRecorder(st, st, nil, logger),
		tasks:    tasks.NewService(st, state, nil, logger),
	}
	return a, fileCfg, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
	if err := a.closeLog(); err != nil {
		logErrf("failed to close log: %v\n", err)
	}
}

func runTimerCmd(cmd *cobra.Command, _ []string) error {
	a, fileCfg, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	applyStringConfig(cmd, "preset", &timerPreset, fileCfg.Timer.Preset)
	applyIntConfig(cmd, "tick-ms", &timerTickMS, fileCfg.Timer.TickMS)
	applyIntConfig(cmd, "extend-short", &timerExtendShort, fileCfg.Timer.ExtendShort)
	applyIntConfig(cmd, "extend-long", &timerExtendLong, fileCfg.Timer.ExtendLong)
	applyBoolConfig(cmd, "auto-switch", &timerAutoSwitch, fileCfg.Timer.AutoSwitch)
	applyBoolConfig(cmd, "bell", &notifyBell, fileCfg.Notify.Bell)
	if fileCfg.Notify.Message != nil {
		notifyMessage = *fileCfg.Notify.Message
	}

	preset, err := validateConfig()
	if err != nil {
		return err
	}

	engine := timer.New(a.sessions, timer.Options{
		TickInterval: time.Duration(timerTickMS) * time.Millisecond,
		Logger:       a.log,
	})
	defer engine.Shutdown()

	changes := make(chan struct{}, 1)
	unsubscribe := a.store.Subscribe(func(store.Change) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ui := tui.NewModel(tui.Deps{
		Engine:   engine,
		Tasks:    a.tasks,
		Sessions: a.sessions,
		Notifier: notify.New(notifyMessage, notifyBell, os.Stderr),
		Changes:  changes,
		Logger:   a.log,
	}, tui.Options{
		Preset:      preset,
		ExtendShort: timerExtendShort,
		ExtendLong:  timerExtendLong,
		AutoSwitch:  timerAutoSwitch,
	})
	program := tea.NewProgram(ui, tea.WithAltScreen())
	_, runErr := program.Run()

	// A crashed UI must not leave the open session unrecorded.
	if snap := engine.Snapshot(); snap.State != model.Idle {
		if _, err := engine.Stop(context.Background(), false); err != nil {
			logErrf("failed to stop timer: %v\n", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List timer presets",
		Args:  cobra.NoArgs,
		RunE:  runPresetsCmd,
	}
}

func runPresetsCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	active := timer.DefaultPresetID
	if fileCfg.Timer.Preset != nil {
		active = *fileCfg.Timer.Preset
	}
	return history.WritePresets(cmd.OutOrStdout(), timer.Presets, active)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# wrangler configuration
# Uncomment a value to enable it. CLI flags override config values.

[timer]
# preset = %q         # Preset id: short-sprint, classic, long, deep
# tick-ms = %d             # Countdown refresh interval (>= %d)
# extend-short = %d          # Minutes added by "e" after a timer completes
# extend-long = %d          # Minutes added by "E"
# auto-switch = false       # Switch focus/break automatically on completion

[notify]
# message = %q
# bell = false              # Ring the terminal bell on completion

[log]
# level = %q             # trace, debug, info, warn, error
# file = %q
`,
		timer.DefaultPresetID,
		defaultTickMS,
		config.MinTickMS,
		defaultExtendShort,
		defaultExtendLong,
		notify.DefaultMessage,
		logging.DefaultLevel,
		config.DefaultLogPath(),
	)
}

func validateConfig() (model.Preset, error) {
	preset, ok := timer.PresetByID(timerPreset)
	if !ok {
		return model.Preset{}, fmt.Errorf("unknown preset %q (see: wrangler presets)", timerPreset)
	}
	if timerTickMS < config.MinTickMS {
		return model.Preset{}, fmt.Errorf("--tick-ms must be >= %d", config.MinTickMS)
	}
	if timerExtendShort <= 0 {
		return model.Preset{}, fmt.Errorf("--extend-short must be > 0")
	}
	if timerExtendLong <= 0 {
		return model.Preset{}, fmt.Errorf("--extend-long must be > 0")
	}
	if notifyMessage != "" {
		if err := notify.Validate(notifyMessage); err != nil {
			return model.Preset{}, err
		}
	}
	return preset, nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
