package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"vidpress/internal/queue"
)

func buildQueueListRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.ID),
			truncate(job.Title, 40),
			job.Brand,
			string(job.Status),
			formatProgress(job),
			humanize.Time(job.CreatedAt),
		})
	}
	return rows
}

func formatProgress(job *queue.Job) string {
	if job.Status == queue.StatusCompleted {
		return "done"
	}
	if job.ProgressStep == "" {
		return ""
	}
	return fmt.Sprintf("%s %.0f%%", job.ProgressStep, job.ProgressPercent)
}

func writeJobDetail(out io.Writer, job *queue.Job) {
	fmt.Fprintf(out, "Job #%d: %s\n", job.ID, job.Title)
	fmt.Fprintf(out, "  Brand:      %s\n", job.Brand)
	fmt.Fprintf(out, "  Slug:       %s\n", job.Slug)
	fmt.Fprintf(out, "  Status:     %s\n", job.Status)
	if job.RecordID != 0 {
		fmt.Fprintf(out, "  Record:     %d\n", job.RecordID)
	}
	if job.CDNVideoID != "" {
		fmt.Fprintf(out, "  CDN video:  %s (library %d)\n", job.CDNVideoID, job.CDNLibraryID)
	}
	if job.ThumbnailURL != "" {
		fmt.Fprintf(out, "  Thumbnail:  %s\n", job.ThumbnailURL)
	}
	fmt.Fprintf(out, "  Video file: %s\n", job.VideoFile)
	fmt.Fprintf(out, "  Created:    %s\n", humanize.Time(job.CreatedAt))

	fmt.Fprintln(out, "  Steps:")
	states := job.StepStates()
	for _, step := range queue.Steps() {
		fmt.Fprintf(out, "    %-10s %s\n", step, stepStateLabel(states[step]))
	}

	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:      %s\n", job.ErrorMessage)
	}
	if job.NeedsReview {
		fmt.Fprintf(out, "  Review:     %s\n", job.ReviewReason)
	}
}

func stepStateLabel(state queue.StepState) string {
	switch state {
	case queue.StepDone:
		return "done"
	case queue.StepInProgress:
		return "in progress"
	case queue.StepFailed:
		return "failed"
	default:
		return "pending"
	}
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
