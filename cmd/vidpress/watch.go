package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"vidpress/internal/queue"
)

// watchPollInterval controls how often the inline watcher re-reads the
// job row while the pipeline runs.
const watchPollInterval = 200 * time.Millisecond

// watchJobProgress follows a job's persisted progress while RunJob drives
// it in the same process. Interactive terminals get a progress bar; other
// writers get a line per step change. The returned func stops the watcher
// and waits for it to finish rendering.
func watchJobProgress(ctx context.Context, store *queue.Store, jobID int64, out io.Writer) func() {
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if shouldColorize(out) {
			followWithBar(watchCtx, store, jobID, out)
		} else {
			followWithLines(watchCtx, store, jobID, out)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func followWithBar(ctx context.Context, store *queue.Store, jobID int64, out io.Writer) {
	bar := progressbar.NewOptions64(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Clear() //nolint:errcheck

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err := store.GetByID(ctx, jobID)
		if err != nil || job == nil {
			continue
		}
		bar.Describe(describeProgress(job))
		_ = bar.Set64(int64(job.ProgressPercent))
		if job.IsTerminal() {
			return
		}
	}
}

func followWithLines(ctx context.Context, store *queue.Store, jobID int64, out io.Writer) {
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	var lastStep string
	var lastPercent = -1.0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err := store.GetByID(ctx, jobID)
		if err != nil || job == nil {
			continue
		}
		percent := float64(int(job.ProgressPercent))
		if job.ProgressStep != lastStep || percent != lastPercent {
			fmt.Fprintf(out, "%s: %.0f%% %s\n", job.ProgressStep, percent, job.ProgressMessage)
			lastStep = job.ProgressStep
			lastPercent = percent
		}
		if job.IsTerminal() {
			return
		}
	}
}

func describeProgress(job *queue.Job) string {
	desc := job.ProgressStep
	if desc == "" {
		desc = "Working"
	}
	if job.TotalBytes > 0 && job.ProgressBytes > 0 {
		desc = fmt.Sprintf("%s (%s / %s)", desc,
			humanize.IBytes(uint64(job.ProgressBytes)),
			humanize.IBytes(uint64(job.TotalBytes)))
	}
	return desc
}
