// Package main is the terminal focus client.
//
// focus runs a focus-session timer for one student. Leaving the terminal
// (focus moves to another window, or the session is suspended with Ctrl+Z)
// while the timer runs is reported to the engagement service as a
// violation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alem-hub/engagement-hub/internal/client/api"
	"github.com/alem-hub/engagement-hub/internal/client/focus"
	"github.com/alem-hub/engagement-hub/pkg/logger"
)

var (
	apiURL       string
	studentID    string
	reason       string
	logFile      string
	pollInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "focus",
	Short:        "Run a focus session that reports lost focus to your mentor",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&apiURL, "api", getEnv("FOCUS_API_URL", "http://localhost:8080"), "engagement service base URL")
	f.StringVar(&studentID, "student", os.Getenv("FOCUS_STUDENT_ID"), "your student id")
	f.StringVar(&reason, "reason", "", "violation reason sent with reports")
	f.StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "engagement-focus.log"), "diagnostics log file, empty to disable")
	f.DurationVar(&pollInterval, "poll", 30*time.Second, "status poll interval when the push channel is down")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if studentID == "" {
		return fmt.Errorf("--student or FOCUS_STUDENT_ID is required")
	}

	log, closeLog, err := setupLogger(logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	clientConfig := api.DefaultClientConfig(apiURL)
	clientConfig.Logger = log
	client := api.NewClient(clientConfig)

	local := focus.NewLocal(focus.LocalState{})
	terminal := focus.NewEventSource()

	monitor := focus.NewMonitor(focus.MonitorConfig{
		StudentID: studentID,
		Reporter:  client,
		Local:     local,
		Observers: []focus.LifecycleObserver{terminal, focus.SuspendSignalObserver{}},
		Reason:    reason,
		Logger:    log,
	})
	defer monitor.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	streamURL, err := focus.StreamURLFor(apiURL)
	if err != nil {
		log.Warn("push channel disabled", "error", err)
	}
	syncer := focus.NewSyncer(focus.SyncConfig{
		StudentID:    studentID,
		Fetcher:      client,
		Local:        local,
		StreamURL:    streamURL,
		PollInterval: pollInterval,
		Logger:       log,
	})
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		_ = syncer.Run(ctx)
	}()

	p := tea.NewProgram(newModel(studentID, monitor, terminal, client), tea.WithAltScreen(), tea.WithReportFocus())
	local.OnChange(func(s focus.LocalState) { p.Send(stateMsg(s)) })

	_, err = p.Run()
	cancel()
	<-syncDone
	return err
}

func setupLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return logger.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log := logger.New(logger.Options{
		Output: f,
		Level:  slog.LevelInfo,
		Format: logger.FormatText,
		Attrs:  []any{"student_id", studentID},
	})
	return log, func() { _ = f.Close() }, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
