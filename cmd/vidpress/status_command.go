package main

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vidpress/internal/queue"
	"vidpress/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and stage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			lockPath := filepath.Join(cfg.Paths.LogDir, "vidpressd.lock")
			if daemonLockHeld(lockPath) {
				fmt.Fprintln(out, renderStatusLine("vidpressd", statusOK, "running", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("vidpressd", statusWarn, "not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, lockPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Log file", statusInfo, filepath.Join(cfg.Paths.LogDir, "vidpress.log"), colorize))

			return ctx.withStore(func(store *queue.Store) error {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(out, line)
				}
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				writeQueueSummary(cmd, summary, colorize)

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Stages", colorize) {
					fmt.Fprintln(out, line)
				}
				manager := workflow.NewManager(cfg, store, newCLILogger(cfg))
				registerPipelineStages(manager, cfg, store, newCLILogger(cfg))
				for _, health := range manager.StageHealth(cmd.Context()) {
					kind := statusOK
					message := "ready"
					if !health.Ready {
						kind = statusError
						message = health.Detail
					}
					fmt.Fprintln(out, renderStatusLine(health.Name, kind, message, colorize))
				}
				return nil
			})
		},
	}
}

func writeQueueSummary(cmd *cobra.Command, summary queue.HealthSummary, colorize bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", summary.Total), colorize))
	fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", summary.Pending), colorize))
	fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprintf("%d", summary.Processing), colorize))

	failedKind := statusOK
	if summary.Failed > 0 {
		failedKind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", summary.Failed), colorize))

	reviewKind := statusOK
	if summary.Review > 0 {
		reviewKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Review", reviewKind, fmt.Sprintf("%d", summary.Review), colorize))
	fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d", summary.Completed), colorize))
}

// daemonLockHeld probes the daemon lock without disturbing a running
// instance: if we can take the lock nobody else holds it.
func daemonLockHeld(path string) bool {
	probe := flock.New(path)
	locked, err := probe.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = probe.Unlock()
		return false
	}
	return true
}
