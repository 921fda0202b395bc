package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidpress/internal/queue"
	"vidpress/internal/record"
	"vidpress/internal/services"
	"vidpress/internal/textutil"
	"vidpress/internal/workflow"
)

// publishAtLayouts are accepted by --publish-at, most specific first.
var publishAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var (
		title     string
		slug      string
		shortDesc string
		longDesc  string
		publishAt string
		videoFile string
		thumbFile string
		brand     string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Queue a sponsor video for publishing",
		Long: `Queue a sponsor video for publishing.

The job runs through create, upload, process, thumbnail, and update in
order. With --watch the pipeline runs inline and progress is shown;
without it the job waits for the daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			job := &queue.Job{
				Brand:            strings.TrimSpace(brand),
				Title:            strings.TrimSpace(title),
				Slug:             strings.TrimSpace(slug),
				ShortDescription: strings.TrimSpace(shortDesc),
				LongDescription:  strings.TrimSpace(longDesc),
			}
			if job.Brand == "" {
				job.Brand = cfg.Backend.Brand
			}
			if job.Slug == "" {
				job.Slug = textutil.Slugify(job.Title)
			}
			if job.VideoFile, err = resolveAbs(videoFile); err != nil {
				return fmt.Errorf("video file: %w", err)
			}
			if job.ThumbnailFile, err = resolveAbs(thumbFile); err != nil {
				return fmt.Errorf("thumbnail file: %w", err)
			}
			if publishAt != "" {
				parsed, err := parsePublishAt(publishAt)
				if err != nil {
					return err
				}
				job.PublishAt = parsed
			}

			if err := record.ValidateJob(job); err != nil {
				printFieldErrors(cmd, err)
				return errors.New("draft is not valid")
			}

			return ctx.withStore(func(store *queue.Store) error {
				queued, err := store.Enqueue(cmd.Context(), job)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued %q as job #%d (%s)\n", queued.Title, queued.ID, filepath.Base(queued.VideoFile))

				if !watch {
					fmt.Fprintln(out, "The daemon will pick the job up; run `vidpress status` to follow it.")
					return nil
				}

				manager := workflow.NewManager(cfg, store, newCLILogger(cfg))
				registerPipelineStages(manager, cfg, store, newCLILogger(cfg))

				stopWatch := watchJobProgress(cmd.Context(), store, queued.ID, out)
				final, runErr := manager.RunJob(cmd.Context(), queued.ID)
				stopWatch()

				return reportRunOutcome(cmd, final, runErr)
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title (required)")
	cmd.Flags().StringVar(&slug, "slug", "", "URL slug (derived from title when empty)")
	cmd.Flags().StringVar(&shortDesc, "short-description", "", "Short description (required)")
	cmd.Flags().StringVar(&longDesc, "long-description", "", "Long description")
	cmd.Flags().StringVar(&publishAt, "publish-at", "", "Publish timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&videoFile, "video", "", "Path to the video file (required)")
	cmd.Flags().StringVar(&thumbFile, "thumbnail", "", "Path to the thumbnail image (required)")
	cmd.Flags().StringVar(&brand, "brand", "", "Brand scope (defaults to backend.brand from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Run the pipeline inline and show progress")

	return cmd
}

func resolveAbs(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return abs, nil
}

func parsePublishAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range publishAtLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --publish-at %q (want RFC3339 or YYYY-MM-DD)", value)
}

func printFieldErrors(cmd *cobra.Command, err error) {
	out := cmd.ErrOrStderr()
	fields, ok := services.AsFieldErrors(err)
	if !ok {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintln(out, "The draft has problems:")
	for _, field := range fields.Fields() {
		for _, msg := range fields[field] {
			fmt.Fprintf(out, "  %s %s\n", field, msg)
		}
	}
}

func reportRunOutcome(cmd *cobra.Command, job *queue.Job, runErr error) error {
	out := cmd.OutOrStdout()
	if job == nil {
		return runErr
	}
	switch job.Status {
	case queue.StatusCompleted:
		fmt.Fprintf(out, "Published %q (backend record %d, CDN video %s)\n", job.Title, job.RecordID, job.CDNVideoID)
		return nil
	case queue.StatusReview:
		fmt.Fprintf(out, "Job #%d needs review: %s\n", job.ID, job.ReviewReason)
	case queue.StatusFailed:
		fmt.Fprintf(out, "Job #%d failed during %s: %s\n", job.ID, stepLabelFor(job.FailedFrom), job.ErrorMessage)
		fmt.Fprintf(out, "Retry with `vidpress queue retry %d`; the job resumes at the failed step.\n", job.ID)
	}
	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("job #%d ended in status %s", job.ID, job.Status)
}

func stepLabelFor(status queue.Status) string {
	if step, ok := queue.StepForProcessing(status); ok {
		return string(step)
	}
	return string(status)
}
