package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidpress/internal/config"
)

const userAgent = "vidpress/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyPublishStarted(ctx context.Context, title string) error
	NotifyPublishCompleted(ctx context.Context, title, brand string) error
	NotifyPublishFailed(ctx context.Context, title, step string, err error) error
	NotifyReviewRequired(ctx context.Context, title, reason string) error
	NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		publishEvents: cfg.Notifications.Publish,
		queueEvents:   cfg.Notifications.Queue,
		errorEvents:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	publishEvents bool
	queueEvents   bool
	errorEvents   bool
}

func (n *ntfyService) NotifyPublishStarted(ctx context.Context, title string) error {
	if !n.publishEvents {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Vidpress - Publish Started",
		message: fmt.Sprintf("Publishing sponsor video: %s", strings.TrimSpace(title)),
		tags:    []string{"vidpress", "publish", "started"},
	})
}

func (n *ntfyService) NotifyPublishCompleted(ctx context.Context, title, brand string) error {
	if !n.publishEvents {
		return nil
	}
	message := fmt.Sprintf("Published: %s", strings.TrimSpace(title))
	if brand = strings.TrimSpace(brand); brand != "" {
		message = fmt.Sprintf("%s\nBrand: %s", message, brand)
	}
	return n.send(ctx, payload{
		title:    "Vidpress - Published",
		message:  message,
		tags:     []string{"vidpress", "publish", "completed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyPublishFailed(ctx context.Context, title, step string, err error) error {
	if !n.errorEvents {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Publish failed: ")
	builder.WriteString(strings.TrimSpace(title))
	if step = strings.TrimSpace(step); step != "" {
		builder.WriteString("\nStep: ")
		builder.WriteString(step)
	}
	if err != nil {
		builder.WriteString("\n")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}
	return n.send(ctx, payload{
		title:    "Vidpress - Publish Failed",
		message:  builder.String(),
		tags:     []string{"vidpress", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyReviewRequired(ctx context.Context, title, reason string) error {
	if !n.errorEvents {
		return nil
	}
	message := fmt.Sprintf("Needs review: %s", strings.TrimSpace(title))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	return n.send(ctx, payload{
		title:   "Vidpress - Review Required",
		message: message,
		tags:    []string{"vidpress", "review"},
	})
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.queueEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Vidpress - Queue Complete"
		message = fmt.Sprintf("Queue drained: %d videos published in %s", processed, duration)
	} else {
		title = "Vidpress - Queue Complete (with errors)"
		message = fmt.Sprintf("Queue drained: %d published, %d failed in %s", processed, failed, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"vidpress", "queue", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Vidpress - Test",
		message:  "Notification system test",
		tags:     []string{"vidpress", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPublishStarted(context.Context, string) error                 { return nil }
func (noopService) NotifyPublishCompleted(context.Context, string, string) error       { return nil }
func (noopService) NotifyPublishFailed(context.Context, string, string, error) error   { return nil }
func (noopService) NotifyReviewRequired(context.Context, string, string) error         { return nil }
func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
